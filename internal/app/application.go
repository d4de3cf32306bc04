// Package app assembles the platform's services behind one Application value
// that owns their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/simsynai/platform/internal/app/engine"
	"github.com/simsynai/platform/internal/app/engine/skyeye"
	chatsvc "github.com/simsynai/platform/internal/app/services/chat"
	simsvc "github.com/simsynai/platform/internal/app/services/simulation"
	userssvc "github.com/simsynai/platform/internal/app/services/users"
	"github.com/simsynai/platform/internal/app/storage"
	"github.com/simsynai/platform/internal/app/storage/memory"
	"github.com/simsynai/platform/internal/app/system"
	"github.com/simsynai/platform/internal/config"
	"github.com/simsynai/platform/pkg/logger"
)

// Stores bundles the persistence interfaces the application needs. Nil
// fields default to the in-memory implementation, which keeps tests and
// local runs free of external dependencies.
type Stores struct {
	Tasks   storage.TaskStore
	Results storage.ResultStore
	Users   storage.UserStore
	Chat    storage.ChatStore
}

// Options configures New beyond the required config.
type Options struct {
	Stores Stores
	Engine engine.Engine
	Logger *logger.Logger
}

// Application wires the services together and manages their lifecycle.
type Application struct {
	Simulations *simsvc.Service
	Runner      *simsvc.Runner
	Users       *userssvc.Service
	Chat        *chatsvc.Service
	Engine      engine.Engine

	manager *system.Manager
	log     *logger.Logger
}

// New assembles an application from configuration. Missing stores fall back
// to memory, a missing engine to the SkyEye adapter built from cfg.
func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("app")
	}

	stores := opts.Stores
	if stores.Tasks == nil || stores.Results == nil || stores.Users == nil || stores.Chat == nil {
		mem := memory.New()
		if stores.Tasks == nil {
			stores.Tasks = mem
		}
		if stores.Results == nil {
			stores.Results = mem
		}
		if stores.Users == nil {
			stores.Users = mem
		}
		if stores.Chat == nil {
			stores.Chat = mem
		}
	}

	eng := opts.Engine
	if eng == nil {
		eng = skyeye.New(skyeye.Config{
			ExecutablePath: cfg.Engine.ExecutablePath,
			ModelsDir:      cfg.Engine.ModelsDir,
			ResultsDir:     cfg.Engine.ResultsDir,
			ExecTimeout:    cfg.Engine.ExecTimeout.Std(),
		}, log.WithField("component", "skyeye"))
	}

	simulations := simsvc.New(stores.Tasks, stores.Results, stores.Users, eng, cfg.Engine.ResultsDir, log.WithField("component", "simulation"))
	runner := simsvc.NewRunner(simulations, cfg.Engine.Workers, cfg.Engine.QueueSize, log.WithField("component", "runner"))
	janitor := simsvc.NewJanitor(stores.Tasks, cfg.Engine.JanitorSchedule, cfg.Engine.StaleTaskAge.Std(), log.WithField("component", "janitor"))
	users := userssvc.New(stores.Users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Std(), log.WithField("component", "users"))
	chat := chatsvc.New(stores.Chat, cfg.LLM.APIKeys, cfg.LLM.DefaultModel, nil, log.WithField("component", "chat"))

	manager := system.NewManager()
	if err := manager.Register(runner); err != nil {
		return nil, err
	}
	if err := manager.Register(janitor); err != nil {
		return nil, err
	}

	return &Application{
		Simulations: simulations,
		Runner:      runner,
		Users:       users,
		Chat:        chat,
		Engine:      eng,
		manager:     manager,
		log:         log,
	}, nil
}

// Start checks the engine and brings up the managed services. An engine that
// fails its readiness probe is reported but does not block startup: tasks
// submitted against it fail with a classified message instead.
func (a *Application) Start(ctx context.Context) error {
	if !a.Engine.Initialize(ctx) {
		a.log.Warn("simulation engine failed readiness check; executions will fail until it is fixed")
	}
	return a.manager.Start(ctx)
}

// Stop shuts the managed services down in reverse start order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

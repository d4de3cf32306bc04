// Package storage defines the persistence interfaces the services depend
// on. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/simsynai/platform/internal/app/domain/chat"
	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/domain/user"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// TaskStore persists simulation task records.
type TaskStore interface {
	CreateTask(ctx context.Context, task simulation.Task) (simulation.Task, error)
	UpdateTask(ctx context.Context, task simulation.Task) (simulation.Task, error)
	GetTask(ctx context.Context, id string) (simulation.Task, error)
	ListTasks(ctx context.Context, ownerID string, skip, limit int) ([]simulation.Task, error)
	ListStaleRunning(ctx context.Context, before time.Time) ([]simulation.Task, error)
}

// ResultStore persists the index rows linking tasks to result artifacts.
type ResultStore interface {
	CreateResult(ctx context.Context, rec simulation.ResultRecord) (simulation.ResultRecord, error)
	GetResultByTask(ctx context.Context, taskID string) (simulation.ResultRecord, error)
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
}

// ChatStore persists chat messages.
type ChatStore interface {
	CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	ListMessages(ctx context.Context, userID, taskID string, limit int) ([]chat.Message, error)
}

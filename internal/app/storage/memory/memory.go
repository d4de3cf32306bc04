// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces. It is intended for tests and prototyping and
// deliberately keeps the implementation simple.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simsynai/platform/internal/app/domain/chat"
	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/domain/user"
	"github.com/simsynai/platform/internal/app/storage"
)

// Store is the in-memory persistence layer.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]simulation.Task
	results  map[string]simulation.ResultRecord
	users    map[string]user.User
	messages []chat.Message
}

var (
	_ storage.TaskStore   = (*Store)(nil)
	_ storage.ResultStore = (*Store)(nil)
	_ storage.UserStore   = (*Store)(nil)
	_ storage.ChatStore   = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tasks:   make(map[string]simulation.Task),
		results: make(map[string]simulation.ResultRecord),
		users:   make(map[string]user.User),
	}
}

// TaskStore implementation --------------------------------------------------

func (s *Store) CreateTask(_ context.Context, task simulation.Task) (simulation.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	} else if _, exists := s.tasks[task.ID]; exists {
		return simulation.Task{}, fmt.Errorf("task %s already exists", task.ID)
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	s.tasks[task.ID] = cloneTask(task)
	return cloneTask(task), nil
}

func (s *Store) UpdateTask(_ context.Context, task simulation.Task) (simulation.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tasks[task.ID]
	if !ok {
		return simulation.Task{}, fmt.Errorf("task %s: %w", task.ID, storage.ErrNotFound)
	}

	task.CreatedAt = original.CreatedAt
	task.UpdatedAt = time.Now().UTC()

	s.tasks[task.ID] = cloneTask(task)
	return cloneTask(task), nil
}

func (s *Store) GetTask(_ context.Context, id string) (simulation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return simulation.Task{}, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return cloneTask(task), nil
}

func (s *Store) ListTasks(_ context.Context, ownerID string, skip, limit int) ([]simulation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]simulation.Task, 0)
	for _, task := range s.tasks {
		if ownerID == "" || task.OwnerID == ownerID {
			tasks = append(tasks, cloneTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if skip >= len(tasks) {
		return []simulation.Task{}, nil
	}
	tasks = tasks[skip:]
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (s *Store) ListStaleRunning(_ context.Context, before time.Time) ([]simulation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale := make([]simulation.Task, 0)
	for _, task := range s.tasks {
		if task.Status == simulation.StatusRunning && task.UpdatedAt.Before(before) {
			stale = append(stale, cloneTask(task))
		}
	}
	return stale, nil
}

// ResultStore implementation ------------------------------------------------

func (s *Store) CreateResult(_ context.Context, rec simulation.ResultRecord) (simulation.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	rec.Metadata = copyMap(rec.Metadata)

	s.results[rec.ID] = rec
	return rec, nil
}

func (s *Store) GetResultByTask(_ context.Context, taskID string) (simulation.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.results {
		if rec.TaskID == taskID {
			rec.Metadata = copyMap(rec.Metadata)
			return rec, nil
		}
	}
	return simulation.ResultRecord{}, fmt.Errorf("result for task %s: %w", taskID, storage.ErrNotFound)
}

// UserStore implementation --------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}

	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, fmt.Errorf("user with email %s: %w", email, storage.ErrNotFound)
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, fmt.Errorf("user %s: %w", username, storage.ErrNotFound)
}

// ChatStore implementation --------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *Store) ListMessages(_ context.Context, userID, taskID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]chat.Message, 0)
	for _, msg := range s.messages {
		if msg.UserID != userID {
			continue
		}
		if taskID != "" && msg.TaskID != taskID {
			continue
		}
		messages = append(messages, msg)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// Helpers --------------------------------------------------------------------

func copyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneTask(task simulation.Task) simulation.Task {
	task.Parameters = copyMap(task.Parameters)
	task.OutputVariables = append([]string(nil), task.OutputVariables...)
	if task.CompletedAt != nil {
		t := *task.CompletedAt
		task.CompletedAt = &t
	}
	return task
}

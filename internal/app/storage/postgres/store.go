// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/simsynai/platform/internal/app/domain/chat"
	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/domain/user"
	"github.com/simsynai/platform/internal/app/storage"
)

// Store implements the storage interfaces over a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var (
	_ storage.TaskStore   = (*Store)(nil)
	_ storage.ResultStore = (*Store)(nil)
	_ storage.UserStore   = (*Store)(nil)
	_ storage.ChatStore   = (*Store)(nil)
)

// New wraps an existing database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and applies pending migrations.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := New(db)
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	return err
}

// taskRow is the scan target for simulation_tasks.
type taskRow struct {
	ID              string         `db:"id"`
	OwnerID         string         `db:"owner_id"`
	Name            string         `db:"name"`
	Description     sql.NullString `db:"description"`
	Status          string         `db:"status"`
	Parameters      []byte         `db:"parameters"`
	ModelPath       string         `db:"model_path"`
	Duration        float64        `db:"duration"`
	StepSize        float64        `db:"step_size"`
	OutputVariables []byte         `db:"output_variables"`
	ResultPath      sql.NullString `db:"result_path"`
	ErrorMessage    sql.NullString `db:"error_message"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
}

func (r taskRow) toDomain() (simulation.Task, error) {
	task := simulation.Task{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Name:         r.Name,
		Description:  r.Description.String,
		Status:       simulation.Status(r.Status),
		ModelPath:    r.ModelPath,
		Duration:     r.Duration,
		StepSize:     r.StepSize,
		ResultPath:   r.ResultPath.String,
		ErrorMessage: r.ErrorMessage.String,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		task.CompletedAt = &t
	}
	if len(r.Parameters) > 0 {
		if err := json.Unmarshal(r.Parameters, &task.Parameters); err != nil {
			return simulation.Task{}, fmt.Errorf("decode parameters: %w", err)
		}
	}
	if len(r.OutputVariables) > 0 {
		if err := json.Unmarshal(r.OutputVariables, &task.OutputVariables); err != nil {
			return simulation.Task{}, fmt.Errorf("decode output variables: %w", err)
		}
	}
	return task, nil
}

const taskColumns = `id, owner_id, name, description, status, parameters, model_path,
	duration, step_size, output_variables, result_path, error_message,
	created_at, updated_at, completed_at`

// TaskStore implementation --------------------------------------------------

func (s *Store) CreateTask(ctx context.Context, task simulation.Task) (simulation.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	parameters, err := json.Marshal(task.Parameters)
	if err != nil {
		return simulation.Task{}, err
	}
	outputVars, err := json.Marshal(task.OutputVariables)
	if err != nil {
		return simulation.Task{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulation_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, task.ID, task.OwnerID, task.Name, nullString(task.Description), string(task.Status),
		parameters, task.ModelPath, task.Duration, task.StepSize, outputVars,
		nullString(task.ResultPath), nullString(task.ErrorMessage),
		task.CreatedAt, task.UpdatedAt, nullTime(task.CompletedAt))
	if err != nil {
		return simulation.Task{}, err
	}
	return task, nil
}

func (s *Store) UpdateTask(ctx context.Context, task simulation.Task) (simulation.Task, error) {
	task.UpdatedAt = time.Now().UTC()

	parameters, err := json.Marshal(task.Parameters)
	if err != nil {
		return simulation.Task{}, err
	}
	outputVars, err := json.Marshal(task.OutputVariables)
	if err != nil {
		return simulation.Task{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE simulation_tasks
		SET name = $2, description = $3, status = $4, parameters = $5,
			model_path = $6, duration = $7, step_size = $8, output_variables = $9,
			result_path = $10, error_message = $11, updated_at = $12, completed_at = $13
		WHERE id = $1
	`, task.ID, task.Name, nullString(task.Description), string(task.Status), parameters,
		task.ModelPath, task.Duration, task.StepSize, outputVars,
		nullString(task.ResultPath), nullString(task.ErrorMessage),
		task.UpdatedAt, nullTime(task.CompletedAt))
	if err != nil {
		return simulation.Task{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return simulation.Task{}, fmt.Errorf("task %s: %w", task.ID, storage.ErrNotFound)
	}
	return task, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (simulation.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+taskColumns+` FROM simulation_tasks WHERE id = $1
	`, id)
	if err != nil {
		return simulation.Task{}, notFound(err, "task", id)
	}
	return row.toDomain()
}

func (s *Store) ListTasks(ctx context.Context, ownerID string, skip, limit int) ([]simulation.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+taskColumns+` FROM simulation_tasks
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`, ownerID, skip, limit)
	if err != nil {
		return nil, err
	}

	tasks := make([]simulation.Task, 0, len(rows))
	for _, row := range rows {
		task, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Store) ListStaleRunning(ctx context.Context, before time.Time) ([]simulation.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+taskColumns+` FROM simulation_tasks
		WHERE status = $1 AND updated_at < $2
	`, string(simulation.StatusRunning), before)
	if err != nil {
		return nil, err
	}

	tasks := make([]simulation.Task, 0, len(rows))
	for _, row := range rows {
		task, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// ResultStore implementation ------------------------------------------------

func (s *Store) CreateResult(ctx context.Context, rec simulation.ResultRecord) (simulation.ResultRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return simulation.ResultRecord{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulation_results (id, task_id, data_path, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.TaskID, rec.DataPath, metadata, rec.CreatedAt)
	if err != nil {
		return simulation.ResultRecord{}, err
	}
	return rec, nil
}

func (s *Store) GetResultByTask(ctx context.Context, taskID string) (simulation.ResultRecord, error) {
	var row struct {
		ID        string    `db:"id"`
		TaskID    string    `db:"task_id"`
		DataPath  string    `db:"data_path"`
		Metadata  []byte    `db:"metadata"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT id, task_id, data_path, metadata, created_at
		FROM simulation_results WHERE task_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, taskID)
	if err != nil {
		return simulation.ResultRecord{}, notFound(err, "result for task", taskID)
	}

	rec := simulation.ResultRecord{
		ID:        row.ID,
		TaskID:    row.TaskID,
		DataPath:  row.DataPath,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &rec.Metadata); err != nil {
			return simulation.ResultRecord{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return rec, nil
}

// UserStore implementation --------------------------------------------------

type userRow struct {
	ID             string         `db:"id"`
	Username       string         `db:"username"`
	Email          string         `db:"email"`
	HashedPassword string         `db:"hashed_password"`
	FullName       sql.NullString `db:"full_name"`
	PreferredModel sql.NullString `db:"preferred_model"`
	IsActive       bool           `db:"is_active"`
	IsSuperuser    bool           `db:"is_superuser"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r userRow) toDomain() user.User {
	return user.User{
		ID:             r.ID,
		Username:       r.Username,
		Email:          r.Email,
		HashedPassword: r.HashedPassword,
		FullName:       r.FullName.String,
		PreferredModel: r.PreferredModel.String,
		IsActive:       r.IsActive,
		IsSuperuser:    r.IsSuperuser,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const userColumns = `id, username, email, hashed_password, full_name, preferred_model,
	is_active, is_superuser, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Username, u.Email, u.HashedPassword, nullString(u.FullName),
		nullString(u.PreferredModel), u.IsActive, u.IsSuperuser, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = $2, email = $3, hashed_password = $4, full_name = $5,
			preferred_model = $6, is_active = $7, is_superuser = $8, updated_at = $9
		WHERE id = $1
	`, u.ID, u.Username, u.Email, u.HashedPassword, nullString(u.FullName),
		nullString(u.PreferredModel), u.IsActive, u.IsSuperuser, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return user.User{}, notFound(err, "user", id)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return user.User{}, notFound(err, "user", email)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		return user.User{}, notFound(err, "user", username)
	}
	return row.toDomain(), nil
}

// ChatStore implementation --------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, user_id, task_id, role, content, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.UserID, nullString(msg.TaskID), msg.Role, msg.Content, msg.Model, msg.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, userID, taskID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []struct {
		ID        string         `db:"id"`
		UserID    string         `db:"user_id"`
		TaskID    sql.NullString `db:"task_id"`
		Role      string         `db:"role"`
		Content   string         `db:"content"`
		Model     string         `db:"model"`
		CreatedAt time.Time      `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, task_id, role, content, model, created_at
		FROM (
			SELECT id, user_id, task_id, role, content, model, created_at
			FROM chat_messages
			WHERE user_id = $1 AND ($2 = '' OR task_id = $2)
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`, userID, taskID, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, chat.Message{
			ID:        row.ID,
			UserID:    row.UserID,
			TaskID:    row.TaskID.String,
			Role:      row.Role,
			Content:   row.Content,
			Model:     row.Model,
			CreatedAt: row.CreatedAt,
		})
	}
	return messages, nil
}

// Helpers --------------------------------------------------------------------

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

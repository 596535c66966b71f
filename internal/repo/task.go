package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/task-flow-api/internal/model"
)

var (
	ErrorNotFound    = errors.New("not found")
	ErrorConflict    = errors.New("conflict")
	ErrorUnavailable = errors.New("store unavailable")
)

const taskColumns = "id, title, description, status, priority, due_date, owner_id, version, created_at, updated_at"

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTaskRepo(pool *pgxpool.Pool, timeout time.Duration) *TaskRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TaskRepo{
		pool:    pool,
		timeout: timeout,
	}
}

// opCtx ограничивает каждую операцию таймаутом стора
func (r *TaskRepo) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueDate, &t.OwnerID, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	created, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, due_date, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+taskColumns+`
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.DueDate, t.OwnerID))
	return created, r.mapError(err)
}

func (r *TaskRepo) Get(ctx context.Context, id uuid.UUID) (model.Task, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, r.mapError(err)
}

func (r *TaskRepo) List(ctx context.Context, filter model.TaskFilter, page model.Pagination) ([]model.Task, int, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	where := `
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR priority = $2)
	`

	var total int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM tasks "+where,
		filter.Status, filter.Priority,
	).Scan(&total)
	if err != nil {
		return nil, 0, r.mapError(err)
	}

	query := "SELECT " + taskColumns + " FROM tasks " + where +
		" ORDER BY created_at DESC, id DESC"
	args := []any{filter.Status, filter.Priority}
	if page.Enabled() {
		query += " LIMIT $3 OFFSET $4"
		args = append(args, page.Limit, page.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, r.mapError(err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, r.mapError(rows.Err())
}

func (r *TaskRepo) Update(ctx context.Context, id uuid.UUID, version int, patch model.TaskPatch) (model.Task, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	t, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title       = COALESCE($3, title),
		    description = COALESCE($4, description),
		    status      = COALESCE($5, status),
		    priority    = COALESCE($6, priority),
		    due_date    = COALESCE($7, due_date),
		    version     = version + 1,
		    updated_at  = now()
		WHERE id = $1 AND version = $2
		RETURNING `+taskColumns+`
	`, id, version, patch.Title, patch.Description, patch.Status, patch.Priority, patch.DueDate))

	if errors.Is(err, pgx.ErrNoRows) {
		// Строка не совпала: либо задача удалена, либо версия устарела
		return t, r.missReason(ctx, id)
	}
	return t, r.mapError(err)
}

func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID, version int) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	cmd, err := r.pool.Exec(ctx,
		"DELETE FROM tasks WHERE id = $1 AND version = $2", id, version)
	if err != nil {
		return r.mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return r.missReason(ctx, id)
	}
	return nil
}

// OverdueCandidates возвращает очередную пачку просроченных задач (keyset по id)
func (r *TaskRepo) OverdueCandidates(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]model.Task, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status IN ('pending', 'in_progress')
		  AND due_date IS NOT NULL
		  AND due_date < $1
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`, now, afterID, limit)
	if err != nil {
		return nil, r.mapError(err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, r.mapError(rows.Err())
}

func (r *TaskRepo) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var s Stats
	var pending, inProgress, completed, overdue int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'in_progress'),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'overdue'),
		       COUNT(*) FILTER (WHERE priority = 'high')
		FROM tasks
	`).Scan(&s.Total, &pending, &inProgress, &completed, &overdue, &s.HighPriority)
	if err != nil {
		return s, r.mapError(err)
	}

	s.ByStatus = map[model.Status]int{
		model.StatusPending:    pending,
		model.StatusInProgress: inProgress,
		model.StatusCompleted:  completed,
		model.StatusOverdue:    overdue,
	}
	return s, nil
}

func (r *TaskRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID uuid.UUID) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, resource_id) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, resourceID)
	return r.mapError(err)
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, key string) (uuid.UUID, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE key = $1
	`, key).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrorNotFound
	}
	return id, r.mapError(err)
}

// missReason различает "нет строки" и "версия устарела"
func (r *TaskRepo) missReason(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return r.mapError(err)
	}
	if !exists {
		return ErrorNotFound
	}
	return ErrorConflict
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return errors.Join(ErrorUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ErrorConflict
		}
	}
	return err
}

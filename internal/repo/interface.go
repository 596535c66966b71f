package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/task-flow-api/internal/model"
)

// Stats - агрегаты по всей таблице, считаются одним запросом
type Stats struct {
	Total        int                  `json:"total"`
	ByStatus     map[model.Status]int `json:"by_status"`
	HighPriority int                  `json:"high_priority"`
}

// TaskRepository определяет интерфейс для работы с задачами
type TaskRepository interface {
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Get(ctx context.Context, id uuid.UUID) (model.Task, error)
	List(ctx context.Context, filter model.TaskFilter, page model.Pagination) ([]model.Task, int, error)
	Update(ctx context.Context, id uuid.UUID, version int, patch model.TaskPatch) (model.Task, error)
	Delete(ctx context.Context, id uuid.UUID, version int) error
	OverdueCandidates(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]model.Task, error)
	SaveIdempotencyKey(ctx context.Context, key string, resourceID uuid.UUID) error
	GetIdempotencyKey(ctx context.Context, key string) (uuid.UUID, error)
	Stats(ctx context.Context) (Stats, error)
}

// Leaser - аренда эксклюзивной блокировки с TTL (для sweeper)
type Leaser interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

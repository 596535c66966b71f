package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/task-flow-api/internal/cache"
	"github.com/BuzzLyutic/task-flow-api/internal/model"
)

// StatusNotifier - внешний канал уведомлений (best-effort, см. notifier)
type StatusNotifier interface {
	StatusChanged(ctx context.Context, taskID uuid.UUID, status model.Status)
}

func taskKey(id uuid.UUID) string {
	return "task:" + id.String()
}

// ChangeFanout - общая процедура "инвалидация, затем публикация".
// Ее используют и пользовательский путь записи, и sweeper, чтобы логика
// консистентности не расходилась. Порядок строгий: стор уже зафиксирован
// до вызова, кэш чистится до публикации.
type ChangeFanout struct {
	cache    *cache.Cache
	notifier StatusNotifier
}

func NewChangeFanout(c *cache.Cache, n StatusNotifier) *ChangeFanout {
	return &ChangeFanout{cache: c, notifier: n}
}

func (f *ChangeFanout) Invalidate(ctx context.Context, id uuid.UUID) {
	f.cache.Delete(ctx, taskKey(id))
}

func (f *ChangeFanout) StatusChanged(ctx context.Context, id uuid.UUID, status model.Status) {
	f.cache.Delete(ctx, taskKey(id))
	f.notifier.StatusChanged(ctx, id, status)
}

package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-flow-api/internal/metrics"
	"github.com/BuzzLyutic/task-flow-api/internal/model"
)

const DefaultChannel = "task-processing"

// Notifier публикует смену статуса во внешний канал (pg_notify).
// Канал at-least-once и best-effort: к моменту вызова запись уже
// зафиксирована в сторе, поэтому ошибка публикации только логируется и
// никогда не откатывает операцию вызывающего. Потребители обязаны быть
// идемпотентными по (task_id, status, occurred_at).
type Notifier struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zap.Logger
}

type statusChange struct {
	TaskID     uuid.UUID    `json:"task_id"`
	Status     model.Status `json:"status"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func New(pool *pgxpool.Pool, channel string, logger *zap.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{
		pool:    pool,
		channel: channel,
		logger:  logger,
	}
}

func (n *Notifier) StatusChanged(ctx context.Context, taskID uuid.UUID, status model.Status) {
	payload, err := json.Marshal(statusChange{
		TaskID:     taskID,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		n.logger.Warn("notify: payload not serializable", zap.Error(err))
		metrics.NotifyFailures.Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := n.pool.Exec(ctx, "SELECT pg_notify($1, $2)", n.channel, string(payload)); err != nil {
		n.logger.Warn("notify: publish failed",
			zap.String("channel", n.channel),
			zap.String("task_id", taskID.String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		metrics.NotifyFailures.Inc()
	}
}

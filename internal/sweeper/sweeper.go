package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-flow-api/internal/metrics"
	"github.com/BuzzLyutic/task-flow-api/internal/model"
	"github.com/BuzzLyutic/task-flow-api/internal/repo"
	"github.com/BuzzLyutic/task-flow-api/internal/service"
)

// LeaseName - общее имя аренды; на все инстансы сервиса одна
const LeaseName = "task-sweep"

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type Config struct {
	Repo      repo.TaskRepository
	Leases    repo.Leaser
	Fanout    *service.ChangeFanout
	Logger    *zap.Logger
	Interval  time.Duration // период тика; по умолчанию минута
	LeaseTTL  time.Duration // должен превышать худшее время прохода
	BatchSize int
}

// Sweeper по расписанию переводит просроченные задачи в overdue.
// Проходы идемпотентны: уже переведенная задача под фильтр кандидатов
// больше не попадает, так что частичный проход безопасно возобновляется.
type Sweeper struct {
	repo      repo.TaskRepository
	leases    repo.Leaser
	fanout    *service.ChangeFanout
	logger    *zap.Logger
	interval  time.Duration
	leaseTTL  time.Duration
	batchSize int

	cron *cronlib.Cron

	mu      sync.Mutex
	state   State
	lastRun State // исход последнего состоявшегося прохода
}

func New(cfg Config) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		repo:      cfg.Repo,
		leases:    cfg.Leases,
		fanout:    cfg.Fanout,
		logger:    cfg.Logger,
		interval:  interval,
		leaseTTL:  leaseTTL,
		batchSize: batchSize,
		state:     StateIdle,
		lastRun:   StateIdle,
	}
}

func (s *Sweeper) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sweeper) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// LastRun возвращает исход последнего прохода; пропущенные тики его не меняют
func (s *Sweeper) LastRun() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// finish фиксирует исход и возвращает машину в idle до следующего тика
func (s *Sweeper) finish(outcome State) {
	s.mu.Lock()
	s.lastRun = outcome
	s.state = StateIdle
	s.mu.Unlock()
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cronlib.New()
	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done() // дожидаемся текущего прохода
	s.logger.Info("sweeper stopped")
}

// RunOnce - один проход. Пропущенный тик допустим, параллельный дубль - нет,
// поэтому без аренды проход молча пропускается.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	acquired, err := s.leases.Acquire(ctx, LeaseName, s.leaseTTL)
	if err != nil {
		s.logger.Error("sweep: lease acquire failed", zap.Error(err))
		metrics.SweepRuns.WithLabelValues("failed").Inc()
		return err
	}
	if !acquired {
		s.logger.Debug("sweep: lease held elsewhere, skipping tick")
		metrics.SweepSkips.WithLabelValues("lease_held").Inc()
		return nil
	}

	s.setState(StateRunning)
	err = s.sweep(ctx)

	// Аренду отдаем даже при отмененном контексте
	if rerr := s.leases.Release(context.WithoutCancel(ctx), LeaseName); rerr != nil {
		s.logger.Warn("sweep: lease release failed", zap.Error(rerr))
	}

	if err != nil {
		// Проход доберет остаток на следующем тике
		s.finish(StateFailed)
		s.logger.Error("sweep: run failed", zap.Error(err))
		metrics.SweepRuns.WithLabelValues("failed").Inc()
		return err
	}
	s.finish(StateCompleted)
	metrics.SweepRuns.WithLabelValues("completed").Inc()
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) error {
	now := time.Now().UTC()
	after := uuid.Nil
	swept := 0

	for {
		batch, err := s.repo.OverdueCandidates(ctx, now, after, s.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, t := range batch {
			after = t.ID
			overdue := model.StatusOverdue
			_, err := s.repo.Update(ctx, t.ID, t.Version, model.TaskPatch{Status: &overdue})
			switch {
			case err == nil:
				// Та же процедура, что и на пользовательском пути записи
				s.fanout.StatusChanged(ctx, t.ID, model.StatusOverdue)
				metrics.TasksSwept.Inc()
				swept++
			case errors.Is(err, repo.ErrorConflict), errors.Is(err, repo.ErrorNotFound):
				// Задачу успели изменить или удалить; их результат авторитетен
				s.logger.Debug("sweep: candidate skipped",
					zap.String("task_id", t.ID.String()), zap.Error(err))
				metrics.SweepSkips.WithLabelValues("conflict").Inc()
			default:
				return err
			}
		}

		if len(batch) < s.batchSize {
			break
		}
	}

	if swept > 0 {
		s.logger.Info("sweep: run finished", zap.Int("swept", swept))
	}
	return nil
}

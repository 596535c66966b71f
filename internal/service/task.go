package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-flow-api/internal/cache"
	"github.com/BuzzLyutic/task-flow-api/internal/model"
	"github.com/BuzzLyutic/task-flow-api/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
	ErrTransition = errors.New("invalid status transition")
)

type TaskService struct {
	repo   repo.TaskRepository
	cache  *cache.Cache
	fanout *ChangeFanout
	ttl    time.Duration
	logger *zap.Logger
}

func NewTaskService(r repo.TaskRepository, c *cache.Cache, fanout *ChangeFanout, ttl time.Duration, logger *zap.Logger) *TaskService {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &TaskService{
		repo:   r,
		cache:  c,
		fanout: fanout,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *TaskService) Fanout() *ChangeFanout {
	return s.fanout
}

func (s *TaskService) Create(ctx context.Context, t model.Task, idempKey string) (model.Task, error) {
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if err := s.validate(t); err != nil {
		return t, err
	}

	if idempKey != "" { // Ключ уже видели - возвращаем существующий ресурс
		if existingID, err := s.repo.GetIdempotencyKey(ctx, idempKey); err == nil {
			return s.repo.Get(ctx, existingID)
		}
	}

	// После выхода стора на запись операция доводится до конца,
	// даже если клиент отвалился
	ctx = context.WithoutCancel(ctx)

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return created, err
	}

	if idempKey != "" {
		if err := s.repo.SaveIdempotencyKey(ctx, idempKey, created.ID); err != nil {
			s.logger.Warn("create: idempotency key not saved", zap.Error(err))
		}
	}

	// Кэш не прогреваем: быстрый follow-up update сделал бы запись устаревшей.
	// Создание в статусе по умолчанию - не переход, уведомлять не о чем.
	if created.Status != model.StatusPending {
		s.fanout.StatusChanged(ctx, created.ID, created.Status)
	}
	return created, nil
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (model.Task, error) {
	var t model.Task
	err := s.cache.GetOrFetch(ctx, taskKey(id), s.ttl, &t, func(ctx context.Context) (any, error) {
		// NotFound уходит наверх как есть и в кэш не попадает
		return s.repo.Get(ctx, id)
	})
	return t, err
}

func (s *TaskService) List(ctx context.Context, filter model.TaskFilter, page model.Pagination) ([]model.Task, int, error) {
	if page.Enabled() && page.Limit > 100 {
		page.Limit = 100
	}
	// Списки кэш обходят: поверхность инвалидации не стоит выгоды
	return s.repo.List(ctx, filter, page)
}

func (s *TaskService) Update(ctx context.Context, id uuid.UUID, patch model.TaskPatch) (model.Task, error) {
	if err := s.validatePatch(patch); err != nil {
		return model.Task{}, err
	}

	// Версию берем через cache-aside чтение
	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	if patch.Status != nil && !model.CanTransition(current.Status, *patch.Status) {
		return model.Task{}, ErrTransition
	}

	ctx = context.WithoutCancel(ctx)

	updated, err := s.repo.Update(ctx, id, current.Version, patch)
	if err != nil {
		// Конфликт отдаем вызывающему: повтор - его политика, не наша
		return model.Task{}, err
	}

	// Строгий порядок: стор уже зафиксирован, инвалидация перед публикацией
	if updated.Status != current.Status {
		s.fanout.StatusChanged(ctx, id, updated.Status)
	} else {
		s.fanout.Invalidate(ctx, id)
	}
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, id uuid.UUID) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)

	err = s.repo.Delete(ctx, id, current.Version)
	if err == nil || errors.Is(err, repo.ErrorNotFound) {
		// Запись для несуществующего id в кэше задерживаться не должна
		s.fanout.Invalidate(ctx, id)
	}
	return err
}

func (s *TaskService) Stats(ctx context.Context) (repo.Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *TaskService) validate(t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrValidation
	}
	if !t.Status.Valid() || t.Status == model.StatusOverdue {
		// overdue выставляет только sweeper
		return ErrValidation
	}
	if !t.Priority.Valid() {
		return ErrValidation
	}
	return nil
}

func (s *TaskService) validatePatch(p model.TaskPatch) error {
	if p.Empty() {
		return ErrValidation
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrValidation
	}
	if p.Status != nil && (!p.Status.Valid() || *p.Status == model.StatusOverdue) {
		return ErrValidation
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrValidation
	}
	return nil
}

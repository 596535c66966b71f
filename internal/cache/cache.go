package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/task-flow-api/internal/metrics"
)

const DefaultTTL = 300 * time.Second

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Cache - неавторитетный кэш "сбоку". Значения хранятся сериализованными,
// битая запись читается как промах, ошибки записи глотаются: потеря кэша
// всегда безопасна, источником истины остается стор.
type Cache struct {
	ns     string
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]entry

	group singleflight.Group
}

func New(namespace string, defaultTTL time.Duration, logger *zap.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Cache{
		ns:      namespace,
		ttl:     defaultTTL,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

func (c *Cache) key(k string) string {
	return c.ns + ":" + k
}

func (c *Cache) Get(_ context.Context, key string, dst any) bool {
	k := c.key(key)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		if ok { // истекшую запись убираем лениво
			c.dropIf(k, e)
		}
		metrics.CacheMisses.Inc()
		return false
	}

	if err := json.Unmarshal(e.data, dst); err != nil {
		// Нечитаемое значение = промах, наверх ошибку не отдаем
		c.logger.Warn("cache: dropping unreadable entry",
			zap.String("key", k), zap.Error(err))
		c.dropIf(k, e)
		metrics.CacheMisses.Inc()
		return false
	}
	metrics.CacheHits.Inc()
	return true
}

func (c *Cache) Set(_ context.Context, key string, val any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(val)
	if err != nil {
		c.logger.Warn("cache: set skipped, value not serializable",
			zap.String("key", c.key(key)), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.entries[c.key(key)] = entry{data: data, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// dropIf убирает запись, прочитанную под RLock, только если к моменту
// взятия write-lock ее не успела заместить свежая запись того же ключа
func (c *Cache) dropIf(k string, e entry) {
	c.mu.Lock()
	if cur, ok := c.entries[k]; ok && cur.expiresAt.Equal(e.expiresAt) && bytes.Equal(cur.data, e.data) {
		delete(c.entries, k)
	}
	c.mu.Unlock()
}

// Delete идемпотентен: отсутствие ключа не ошибка
func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, c.key(key))
	c.mu.Unlock()
}

func (c *Cache) Has(_ context.Context, key string) bool {
	c.mu.RLock()
	e, ok := c.entries[c.key(key)]
	c.mu.RUnlock()
	return ok && time.Now().Before(e.expiresAt)
}

// Clear - административный полный сброс, горячий путь его не использует
func (c *Cache) Clear(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// GetOrFetch - чтение с ленивым заполнением. В пределах процесса на ключ
// летит максимум один fetch (singleflight), остальные ждут его результат.
// Ошибка fetch не кэшируется: отсутствие записи кэшировать нельзя.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, dst any, fetch func(ctx context.Context) (any, error)) error {
	if c.Get(ctx, key, dst) {
		return nil
	}

	v, err, _ := c.group.Do(c.key(key), func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, val, ttl)
		return val, nil
	})
	if err != nil {
		return err
	}

	// Ожидавшие получают общий результат; раскладываем его в dst через JSON,
	// так же как при обычном чтении из кэша
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Package redislock сериализует создание заказов по товарам между
// экземплярами сервиса через блокировки в Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordering/internal/domain"
)

const (
	defaultKeyPrefix     = "ordering:stock-lock"
	defaultRetryInterval = 20 * time.Millisecond
	defaultMaxWait       = 5 * time.Second
	releaseTimeout       = 2 * time.Second
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StockLocker реализует domain.StockLocker поверх SET NX PX.
type StockLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	keyPrefix     string
	retryInterval time.Duration
	maxWait       time.Duration
	logger        *log.Entry
}

// Option настраивает StockLocker.
type Option func(*StockLocker)

// WithKeyPrefix задаёт префикс ключей блокировок.
func WithKeyPrefix(prefix string) Option {
	return func(l *StockLocker) {
		if prefix != "" {
			l.keyPrefix = prefix
		}
	}
}

// WithRetryInterval задаёт паузу между попытками захвата занятого ключа.
func WithRetryInterval(d time.Duration) Option {
	return func(l *StockLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithMaxWait ограничивает ожидание всех блокировок одного заказа.
func WithMaxWait(d time.Duration) Option {
	return func(l *StockLocker) {
		if d > 0 {
			l.maxWait = d
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *StockLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewStockLocker создаёт locker. ttl ограничивает время владения ключом,
// если процесс упал, не освободив блокировку.
func NewStockLocker(client redis.UniversalClient, ttl time.Duration, opts ...Option) *StockLocker {
	l := &StockLocker{
		client:        client,
		ttl:           ttl,
		keyPrefix:     defaultKeyPrefix,
		retryInterval: defaultRetryInterval,
		maxWait:       defaultMaxWait,
		logger:        log.WithField("component", "redis-stock-locker"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	return l
}

// Lock захватывает ключи всех товаров в отсортированном порядке. При ошибке
// уже захваченные ключи освобождаются.
func (l *StockLocker) Lock(ctx context.Context, productIDs []string) (func(), error) {
	ids := sortedUnique(productIDs)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	held := make([]string, 0, len(ids))
	for _, id := range ids {
		key := l.key(id)
		if err := l.acquire(waitCtx, key, token); err != nil {
			l.release(held, token)
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held, token) })
	}, nil
}

func (l *StockLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", domain.ErrLockUnavailable, ctxErr)
			}
			return fmt.Errorf("set lock key: %w", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrLockUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *StockLocker) release(keys []string, token string) {
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, l.client, []string{keys[i]}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.WithError(err).WithField("key", keys[i]).Warn("release stock lock failed")
		}
	}
}

func (l *StockLocker) key(productID string) string {
	return fmt.Sprintf("%s:%s", l.keyPrefix, productID)
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var _ domain.StockLocker = (*StockLocker)(nil)

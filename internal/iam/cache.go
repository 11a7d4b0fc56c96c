// Пакет iam — кэш членства в IAM-политике проекта.
// Снимок членов живёт TTL (по умолчанию 60s) и обновляется лениво
// при первом обращении после истечения. Параллельные обновления
// объединяются через singleflight. Любая ошибка получения даёт пустой
// снимок: права admin не выдаются, пока следующее обновление не удастся.
package iam

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// Prometheus-метрики кэша IAM.
var (
	iamRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sn_iam_refresh_total",
			Help: "Количество обновлений снимка членства IAM по результату.",
		},
		[]string{"result"},
	)
	iamMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sn_iam_members",
		Help: "Количество участников в текущем снимке IAM.",
	})
)

// DefaultTTL — время жизни снимка членства.
const DefaultTTL = 60 * time.Second

// defaultFetchTimeout ограничивает одно обновление снимка.
const defaultFetchTimeout = 15 * time.Second

// Fetcher получает актуальное множество email участников.
// Реализуется PolicyFetcher; в тестах подменяется.
type Fetcher interface {
	FetchMembers(ctx context.Context) (map[string]struct{}, error)
}

// snapshot — неизменяемый снимок членства. Заменяется целиком.
type snapshot struct {
	members   map[string]struct{}
	fetchedAt time.Time
}

// Cache — кэш членства IAM. Безопасен для конкурентного использования.
type Cache struct {
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	current atomic.Pointer[snapshot]
	group   singleflight.Group
}

// Option — функциональная опция Cache.
type Option func(*Cache)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithFetchTimeout задаёт таймаут одного обновления.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.fetchTimeout = d
	}
}

// New создаёт кэш. ttl <= 0 заменяется на DefaultTTL.
func New(fetcher Fetcher, ttl time.Duration, logger *slog.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "iam_cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsMember проверяет, состоит ли email в текущем снимке.
// Пустой email — всегда false, без обращения к IAM.
func (c *Cache) IsMember(ctx context.Context, email string) bool {
	key := NormalizeEmail(email)
	if key == "" {
		return false
	}
	_, ok := c.snapshot(ctx).members[key]
	return ok
}

// AllMembers возвращает копию текущего множества участников.
func (c *Cache) AllMembers(ctx context.Context) map[string]struct{} {
	s := c.snapshot(ctx)
	out := make(map[string]struct{}, len(s.members))
	for m := range s.members {
		out[m] = struct{}{}
	}
	return out
}

// Invalidate сбрасывает снимок; следующее обращение выполнит обновление.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
}

// FetchedAt возвращает время получения текущего снимка (нулевое, если снимка нет).
func (c *Cache) FetchedAt() time.Time {
	if s := c.current.Load(); s != nil {
		return s.fetchedAt
	}
	return time.Time{}
}

// snapshot возвращает свежий снимок, при необходимости обновляя его.
func (c *Cache) snapshot(ctx context.Context) *snapshot {
	if s := c.current.Load(); c.fresh(s) {
		return s
	}

	v, _, _ := c.group.Do("members", func() (any, error) {
		// Пока ждали своей очереди, снимок мог обновить другой вызов
		if s := c.current.Load(); c.fresh(s) {
			return s, nil
		}
		s := c.refresh(ctx)
		c.current.Store(s)
		return s, nil
	})
	return v.(*snapshot)
}

// fresh: снимок существует и now - fetchedAt <= ttl.
func (c *Cache) fresh(s *snapshot) bool {
	return s != nil && c.now().Sub(s.fetchedAt) <= c.ttl
}

// refresh получает новый снимок. Ошибка даёт пустое множество.
// Отмена запроса, инициировавшего обновление, не прерывает его:
// результат разделяется всеми ожидающими вызовами.
func (c *Cache) refresh(ctx context.Context) *snapshot {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	// Время фиксируется до запроса: долгий запрос не продлевает жизнь снимка
	fetchedAt := c.now()
	members, err := c.fetcher.FetchMembers(fetchCtx)
	if err != nil {
		c.logger.Error("Ошибка получения членов IAM, используется пустой снимок",
			slog.String("error", err.Error()),
		)
		iamRefreshTotal.WithLabelValues("error").Inc()
		iamMembers.Set(0)
		return &snapshot{members: map[string]struct{}{}, fetchedAt: fetchedAt}
	}
	if members == nil {
		members = map[string]struct{}{}
	}

	iamRefreshTotal.WithLabelValues("ok").Inc()
	iamMembers.Set(float64(len(members)))
	c.logger.Debug("Снимок членов IAM обновлён", slog.Int("members", len(members)))
	return &snapshot{members: members, fetchedAt: fetchedAt}
}

// cache.go — кэш метаданных конспектов для GET /notes/{id}.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/studynotes/internal/domain/model"
)

// Prometheus-метрики кэша конспектов.
var (
	noteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sn_note_cache_hits_total",
		Help: "Количество попаданий в кэш конспектов.",
	})
	noteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sn_note_cache_misses_total",
		Help: "Количество промахов кэша конспектов.",
	})
)

// NoteCache — LRU с TTL для конспектов по ID.
// size <= 0 отключает кэш.
type NoteCache struct {
	lru *expirable.LRU[string, model.Note]
}

// NewNoteCache создаёт кэш на size записей с временем жизни ttl.
func NewNoteCache(size int, ttl time.Duration) *NoteCache {
	if size <= 0 {
		return &NoteCache{}
	}
	return &NoteCache{lru: expirable.NewLRU[string, model.Note](size, nil, ttl)}
}

// Get возвращает копию закэшированного конспекта.
func (c *NoteCache) Get(id string) (*model.Note, bool) {
	if c.lru == nil {
		return nil, false
	}
	n, ok := c.lru.Get(id)
	if !ok {
		noteCacheMisses.Inc()
		return nil, false
	}
	noteCacheHits.Inc()
	return &n, true
}

// Add сохраняет копию конспекта.
func (c *NoteCache) Add(n *model.Note) {
	if c.lru == nil || n == nil {
		return
	}
	c.lru.Add(n.ID, *n)
}

// Remove удаляет запись.
func (c *NoteCache) Remove(id string) {
	if c.lru == nil {
		return
	}
	c.lru.Remove(id)
}

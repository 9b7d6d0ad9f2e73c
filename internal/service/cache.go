// Пакет service — бизнес-логика Media Gate.
// MediaCache — LRU-кэш записей медиа-реестра с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	mediaCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mg_media_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш медиа.",
	})
	mediaCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mg_media_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша медиа.",
	})
)

// MediaCache — per-instance кэш записей медиа по ID.
// Кэшируются только записи реестра; разрешения и ключевой материал
// всегда читаются заново.
type MediaCache struct {
	cache *expirable.LRU[int64, model.Media]
}

// NewMediaCache создаёт кэш на maxSize записей со временем жизни ttl.
func NewMediaCache(maxSize int, ttl time.Duration) *MediaCache {
	return &MediaCache{cache: expirable.NewLRU[int64, model.Media](maxSize, nil, ttl)}
}

// Get возвращает копию записи из кэша.
func (c *MediaCache) Get(id int64) (*model.Media, bool) {
	val, ok := c.cache.Get(id)
	if !ok {
		mediaCacheMissesTotal.Inc()
		return nil, false
	}
	mediaCacheHitsTotal.Inc()
	return &val, true
}

// Set добавляет или обновляет запись.
func (c *MediaCache) Set(m *model.Media) {
	c.cache.Add(m.ID, *m)
}

// Delete удаляет запись (инвалидация при удалении медиа).
func (c *MediaCache) Delete(id int64) {
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *MediaCache) Len() int {
	return c.cache.Len()
}

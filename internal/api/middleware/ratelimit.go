// ratelimit.go — ограничение частоты запросов по клиенту (token bucket).
// Таблица лимитеров ограничена по размеру и вытесняет неактивных клиентов по TTL.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/goartstore/media-gate/internal/api/errors"
)

// rateLimitedTotal — количество отклонённых по лимиту запросов.
var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mg_rate_limited_total",
	Help: "Количество запросов, отклонённых ограничением частоты",
})

// limiterIdleTTL — время жизни лимитера неактивного клиента.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter выдаёт каждому клиенту собственный rate.Limiter.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rps      rate.Limit
	burst    int
	trusted  []netip.Prefix
	logger   *slog.Logger
}

// RateLimiterOption — настройка RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithTrustedProxies задаёт прокси, чей X-Forwarded-For учитывается
// при определении клиента. Без этой опции заголовок игнорируется.
func WithTrustedProxies(prefixes []netip.Prefix) RateLimiterOption {
	return func(l *RateLimiter) {
		l.trusted = slices.Clone(prefixes)
	}
}

// NewRateLimiter создаёт ограничитель: rps запросов в секунду с запасом burst,
// не более maxClients одновременно отслеживаемых клиентов.
func NewRateLimiter(rps float64, burst, maxClients int, logger *slog.Logger, opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, limiterIdleTTL),
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger.With(slog.String("component", "rate_limiter")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow сообщает, может ли клиент key выполнить запрос сейчас.
func (l *RateLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.limiters.Add(key, lim)
	return lim
}

// Middleware отвечает 429, когда клиент превысил лимит.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := l.clientIP(r)
			if !l.Allow(ip) {
				rateLimitedTotal.Inc()
				l.logger.Debug("Превышен лимит запросов",
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				apierrors.RateLimited(w, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP определяет адрес клиента.
// По умолчанию это адрес соединения. Если соединение пришло от доверенного прокси,
// X-Forwarded-For просматривается справа налево до первого недоверенного адреса.
func (l *RateLimiter) clientIP(r *http.Request) string {
	peer, ok := remoteAddr(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !l.isTrusted(peer) {
		return peer.String()
	}

	hops := forwardedHops(r.Header.Values("X-Forwarded-For"))
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(hops[i])
		if err != nil {
			break
		}
		client = addr.Unmap()
		if !l.isTrusted(client) {
			break
		}
	}
	return client.String()
}

func (l *RateLimiter) isTrusted(addr netip.Addr) bool {
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteAddr разбирает RemoteAddr вида host:port или host.
func remoteAddr(s string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(s)
	if err != nil {
		host = s
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// forwardedHops — адреса из всех заголовков X-Forwarded-For в порядке следования.
func forwardedHops(values []string) []string {
	var hops []string
	for _, v := range values {
		for hop := range strings.SplitSeq(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

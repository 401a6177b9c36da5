package gateway

import (
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter is one client's token bucket.
type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// rateLimiter hands out a token bucket per client address. Buckets idle for
// longer than idle are dropped on the next sweep.
type rateLimiter struct {
	limit      rate.Limit
	burst      int
	idle       time.Duration
	trustProxy bool

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

// newRateLimiter allows perMinute requests per client with the given burst.
// perMinute <= 0 disables limiting and returns nil.
func newRateLimiter(perMinute, burst int, trustProxy bool) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      burst,
		idle:       10 * time.Minute,
		trustProxy: trustProxy,
		clients:    make(map[string]*clientLimiter),
		now:        time.Now,
	}
}

// allow takes a token for client. When none is available it returns the
// wait until the next one.
func (l *rateLimiter) allow(client string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > l.idle {
		for k, c := range l.clients {
			if now.Sub(c.seen) > l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[client]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = c
	}
	c.seen = now
	l.mu.Unlock()

	r := c.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// clientID is the caller's IP: the first X-Forwarded-For hop when the
// gateway sits behind a trusted proxy, otherwise the connection address.
func (l *rateLimiter) clientID(r *http.Request) string {
	if l.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// wrap rejects requests over the client's budget with 429 and Retry-After.
func (l *rateLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		client := l.clientID(r)
		ok, wait := l.allow(client)
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			log.Printf("[gateway] rate limited %s on %s, retry in %ds", client, r.URL.Path, secs)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

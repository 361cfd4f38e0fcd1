package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/paperqa-go/internal/logging"
)

// Questions fan out to a paid completion call, so the per-client budget is
// small: 2 questions/s sustained, 5 back to back.
const (
	defaultRateLimit = 2
	defaultRateBurst = 5
)

const (
	// visitorTTL is how long an idle client keeps its bucket.
	visitorTTL = 5 * time.Minute
	// sweepEvery is the interval between idle-bucket sweeps.
	sweepEvery = time.Minute
)

type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

// rateLimiter throttles POST /api/ask per client address.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	limit rate.Limit
	burst int
	log   *slog.Logger
}

// newRateLimiter returns a limiter granting every client address limit
// questions/s with the given burst, plus the func that stops its sweeper.
func newRateLimiter(limit float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(limit),
		burst:    burst,
		log:      log,
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-t.C:
				rl.sweep(now)
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// reserve takes a token for addr. It returns 0 when the question may run now,
// or how long the client has to wait otherwise; a refused reservation is
// cancelled so it does not eat into the client's future budget.
func (rl *rateLimiter) reserve(addr string, now time.Time) time.Duration {
	rl.mu.Lock()
	v, ok := rl.visitors[addr]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[addr] = v
	}
	v.seen = now
	rl.mu.Unlock()

	res := v.bucket.ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	wait := res.DelayFrom(now)
	if wait > 0 {
		res.CancelAt(now)
	}
	return wait
}

func (rl *rateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for addr, v := range rl.visitors {
		if now.Sub(v.seen) > visitorTTL {
			delete(rl.visitors, addr)
		}
	}
}

// middleware answers 429 with a Retry-After (whole seconds, at least 1) once
// a client exhausts its bucket.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := clientIP(r)
		wait := rl.reserve(addr, time.Now())
		if wait <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("ask throttled",
			slog.String("client", addr),
			slog.Duration("retry_after", wait),
		)
		secs := max(1, int(math.Ceil(wait.Seconds())))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// clientIP is the peer address without its port. Forwarding headers are
// ignored: the server binds to localhost unless told otherwise and nothing
// vouches for a proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}

package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	// DefaultRequestBodyLimitBytes caps request payload size. Reports with
	// many host results are large.
	DefaultRequestBodyLimitBytes int64 = 4 << 20 // 4 MiB

	// DefaultRateLimitRequests is the request budget per client and window.
	DefaultRateLimitRequests = 120

	// DefaultRateLimitWindow is the throttle window.
	DefaultRateLimitWindow = time.Minute
)

const (
	securityHeaderNoSniff = "nosniff"
	securityHeaderNoFrame = "DENY"
	securityHeaderHSTS    = "max-age=63072000; includeSubDomains"

	// Digests and error pages carry inline styles and post forms back here.
	securityHeaderCSP = "default-src 'none'; style-src 'unsafe-inline'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'; form-action 'self'"
)

var securityHeaders = [...]struct{ name, value string }{
	{"X-Content-Type-Options", securityHeaderNoSniff},
	{"X-Frame-Options", securityHeaderNoFrame},
	{"Strict-Transport-Security", securityHeaderHSTS},
	{"Content-Security-Policy", securityHeaderCSP},
	{"Referrer-Policy", "no-referrer"},
}

// SecurityHeaders sets browser hardening headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, sh := range securityHeaders {
			h.Set(sh.name, sh.value)
		}
		next.ServeHTTP(w, r)
	})
}

// BodySizeLimit caps request bodies. Handlers see *http.MaxBytesError
// when a body is larger, which is reported as 413.
func BodySizeLimit(limitBytes int64) func(http.Handler) http.Handler {
	if limitBytes <= 0 {
		limitBytes = DefaultRequestBodyLimitBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientWindow counts the requests of one client in its current window.
type clientWindow struct {
	start time.Time
	count int
}

// throttle is a fixed-window request counter keyed by client address.
type throttle struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
	clients   map[string]clientWindow
}

func newThrottle(limit int, window time.Duration, now func() time.Time) *throttle {
	if limit <= 0 {
		limit = DefaultRateLimitRequests
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if now == nil {
		now = time.Now
	}
	return &throttle{
		limit:   limit,
		window:  window,
		now:     now,
		clients: make(map[string]clientWindow),
	}
}

// admit counts one request of client. When the client is over budget it
// returns false and the time left until its window resets.
func (t *throttle) admit(client string) (bool, time.Duration) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Expired windows are dropped at most once per window.
	if now.Sub(t.lastSweep) >= t.window {
		for c, w := range t.clients {
			if now.Sub(w.start) >= t.window {
				delete(t.clients, c)
			}
		}
		t.lastSweep = now
	}

	w, ok := t.clients[client]
	if !ok || now.Sub(w.start) >= t.window {
		t.clients[client] = clientWindow{start: now, count: 1}
		return true, 0
	}
	if w.count >= t.limit {
		return false, w.start.Add(t.window).Sub(now)
	}
	w.count++
	t.clients[client] = w
	return true, 0
}

// RateLimit throttles requests per client address. Rejected requests get
// a Retry-After header and the regular error page or JSON body.
func RateLimit(limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return rateLimitWithClock(limit, window, logger, time.Now)
}

func rateLimitWithClock(limit int, window time.Duration, logger *slog.Logger, now func() time.Time) func(http.Handler) http.Handler {
	th := newThrottle(limit, window, now)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := th.admit(clientAddr(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, r, logger, errRateLimited)
		})
	}
}

// clientAddr identifies the caller for throttling and logs by its peer
// host. Forwarded headers count only when TrustProxy mounts RealIP, which
// rewrites RemoteAddr first.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}

// RequestLogger logs one line per request at debug level, and at warn
// level for server errors.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"client", clientAddr(r),
			)
		})
	}
}

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type window struct {
	used  int
	reset time.Time
}

// RateLimit admits limit requests per client in each fixed window of length
// per. The client is keyed by RemoteAddr, so chi's RealIP must run first when
// the dev API sits behind a proxy. Rejections carry Retry-After and the RPC
// error envelope. A non-positive limit disables the check.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	var (
		mu      sync.Mutex
		windows = make(map[string]*window)
		sweep   time.Time
	)
	admit := func(key string, now time.Time) (bool, time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		if now.After(sweep) {
			for k, w := range windows {
				if now.After(w.reset) {
					delete(windows, k)
				}
			}
			sweep = now.Add(per)
		}
		w, ok := windows[key]
		if !ok || now.After(w.reset) {
			w = &window{reset: now.Add(per)}
			windows[key] = w
		}
		if w.used >= limit {
			return false, w.reset.Sub(now)
		}
		w.used++
		return true, 0
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := admit(clientKey(r), time.Now())
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			secs := int(wait / time.Second)
			if wait%time.Second != 0 {
				secs++
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","code":"TOO_MANY_REQUESTS"}}`))
		})
	}
}

// clientKey strips the port from RemoteAddr.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

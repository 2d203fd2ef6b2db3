package dashboard

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// authOption indicates the type of authentication a route requires.
type authOption int

const (
	// authOptionNone indicates that no authentication is required.
	authOptionNone authOption = iota

	// authOptionToken requires a valid dashboard token.
	authOptionToken
)

// maxLimiters bounds the per client limiter table.
const maxLimiters = 10000

// limiter rate limits requests per client address.
type limiter struct {
	limit rate.Limit
	burst int

	mut     sync.Mutex
	clients map[string]*rate.Limiter
}

func newLimiter(limit rate.Limit, burst int) *limiter {
	return &limiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (l *limiter) allow(r *http.Request) bool {
	if l.limit == rate.Inf {
		return true
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	l.mut.Lock()
	defer l.mut.Unlock()

	lim, ok := l.clients[host]
	if !ok {
		if len(l.clients) >= maxLimiters {
			l.clients = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[host] = lim
	}
	return lim.Allow()
}

// middleware wraps a handler with panic recovery, rate limiting, authentication and metrics.
func (s *Server) middleware(handler http.HandlerFunc, auth authOption) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		cw := request.NewClientWriter(w)

		// Recover from any panics that occur in the handler.
		defer func() {
			if rec := recover(); rec != nil {
				s.l.Error("Panic in handler",
					slog.String(logging.KeyError, fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
				request.Error(s.l, cw, http.StatusInternalServerError, request.ErrInternalServer.Error())
			}
		}()

		var path string
		route := mux.CurrentRoute(r)
		if route != nil { // The route may be nil if the request is not routed.
			var err error
			path, err = route.GetPathTemplate()
			if err != nil {
				path = r.URL.Path
			}
		} else {
			path = r.URL.Path
		}

		defer func() {
			// The status code is only known once the handler has returned.
			status := fmt.Sprintf("%d", cw.StatusCode())
			HttpTotalRequests.WithLabelValues(path, r.Method, status).Inc()
			HttpRequestDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(now).Seconds())
		}()

		if !s.limiter.allow(r) {
			cw.Header().Set("Retry-After", "1")
			request.Error(s.l, cw, http.StatusTooManyRequests, request.ErrTooManyRequests.Error())
			return
		}

		if auth == authOptionToken {
			if err := s.auth.Verify(tokenFromRequest(r)); err != nil {
				request.Error(s.l, cw, http.StatusUnauthorized, request.ErrUnauthorized.Error())
				return
			}
		}

		handler(cw, r)
	}
}

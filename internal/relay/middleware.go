package relay

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type account struct {
	aci      string
	deviceID uint32
}

type accountCtxKey struct{}

func accountFrom(ctx context.Context) account {
	a, _ := ctx.Value(accountCtxKey{}).(account)
	return a
}

// parseUsername splits "<aci>.<deviceId>".
func parseUsername(user string) (account, bool) {
	i := strings.LastIndexByte(user, '.')
	if i <= 0 || i == len(user)-1 {
		return account{}, false
	}
	id, err := strconv.ParseUint(user[i+1:], 10, 32)
	if err != nil || id == 0 {
		return account{}, false
	}
	return account{aci: user[:i], deviceID: uint32(id)}, true
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		acct, valid := parseUsername(user)
		if !ok || !valid || pass == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="wpplink"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := s.state.authenticate(r.Context(), acct.aci, pass); err != nil {
			if errors.Is(err, errBadPassword) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			s.internalError(w, "authenticate", err)
			return
		}
		if acct.deviceID != 1 && !strings.HasSuffix(r.URL.Path, "/link") {
			if _, err := s.state.device(r.Context(), acct.aci, acct.deviceID); err != nil {
				http.Error(w, "unknown device", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountCtxKey{}, acct)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct := accountFrom(r.Context())
		ok, err := s.state.allow(r.Context(), acct.aci, s.cfg.RequestsPerMinute, s.now())
		if err != nil {
			s.internalError(w, "rate limit", err)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs each request and counts it by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRelayRequest(route, status)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type principalContextKey struct{}

// PrincipalFromContext returns the caller set by the bearer middleware.
func PrincipalFromContext(ctx context.Context) (*goBankAuth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*goBankAuth.Principal)
	return p, ok
}

// RequireBearer rejects requests without a valid access token. Validation
// is stateless: only the signature and expiry are checked.
func RequireBearer(engine Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeFailure(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeFailure(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}

			principal, err := engine.ValidateAccess(token)
			if err != nil {
				writeFailure(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// clientContext copies the caller's IP and User-Agent into the request
// context, where the engine keys rate limits and fills audit events.
// It runs after middleware.RealIP.
func clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goBankAuth.WithClientIP(r.Context(), clientIP(r))
		ctx = goBankAuth.WithUserAgent(ctx, r.UserAgent())
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = goBankAuth.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// apiLimit applies the global per-IP API budget.
func (s *Server) apiLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.engine.Admit(r.Context(), clientIP(r), goBankAuth.RateAPI); err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_ip", clientIP(r)),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

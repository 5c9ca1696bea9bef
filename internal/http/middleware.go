package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const visitorKey ctxKey = iota

type SessionOpener interface {
	Open(ctx context.Context, id string) (*session.Visitor, error)
}

// SessionMiddleware resolves the visitor behind the session cookie, issuing a
// new session id when the cookie is missing or malformed.
func SessionMiddleware(sessions SessionOpener, cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			v, err := sessions.Open(r.Context(), id)
			if err != nil {
				zerolog.Ctx(r.Context()).Error().Ctx(r.Context()).Err(err).Str("session_id", id).Msg("open session")
				respondError(w, r, http.StatusServiceUnavailable, "session_unavailable", "session could not be opened")
				return
			}

			logger := zerolog.Ctx(r.Context()).With().Str("session_id", id).Logger()
			ctx := logger.WithContext(context.WithValue(r.Context(), visitorKey, v))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func visitorFrom(ctx context.Context) *session.Visitor {
	v, _ := ctx.Value(visitorKey).(*session.Visitor)
	return v
}

// RequestLogger attaches a request scoped zerolog logger to the context and
// writes one access log line per request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			l := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(l.WithContext(r.Context()))

			next.ServeHTTP(ww, r)

			l.Info().Ctx(r.Context()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// BodyLimit caps request bodies at n bytes.
func BodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

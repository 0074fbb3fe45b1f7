package identity

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

// Resolver maps a credential to a subject id.
type Resolver interface {
	Verify(ctx context.Context, credential string) (string, error)
}

type subjectKey struct{}

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok && s != ""
}

// Middleware resolves an Authorization header when present. A request
// without one passes through anonymous; a bad credential is rejected with 401.
func Middleware(res Resolver, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := r.Header.Get("Authorization")
			if cred == "" {
				next.ServeHTTP(w, r)
				return
			}
			sub, err := res.Verify(r.Context(), cred)
			if err != nil {
				if errors.Is(err, ErrInvalidCredential) {
					logger.Debugw("credential rejected", "path", r.URL.Path, "err", err)
					utilities.WriteError(w, http.StatusUnauthorized, "invalid credential")
					return
				}
				logger.Warnw("credential check failed", "err", err)
				utilities.WriteError(w, http.StatusServiceUnavailable, "identity unavailable")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), sub)))
		})
	}
}

// RequireSubject rejects anonymous requests.
func RequireSubject(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SubjectFromContext(r.Context()); !ok {
			utilities.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

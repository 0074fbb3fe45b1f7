package router

import (
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/directory"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/maintenance"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/unlock"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

const Prefix = "/hostlink-api"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", w.Header().Get("X-Request-ID"),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// RequestIDMiddleware echoes an incoming X-Request-ID or assigns a snowflake id.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = utilities.NewSnowflakeID()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// JSON API: nothing here should ever be rendered as a document.
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			w.Header().Set("Cache-Control", "no-store")

			// HSTS only over TLS, 30 days
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePrivileged admits requests carrying the operator key or a
// credential whose account is ADMIN. An empty adminKey disables the key path.
func RequirePrivileged(adminKey string, accounts *account.Service, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminKey != "" {
			if k := r.Header.Get("X-Admin-Key"); k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(adminKey)) == 1 {
				next(w, r)
				return
			}
		}
		sub, ok := identity.SubjectFromContext(r.Context())
		if !ok {
			utilities.WriteError(w, http.StatusUnauthorized, "admin access required")
			return
		}
		a, err := accounts.Get(r.Context(), sub)
		if err != nil || a.Role != entity.RoleAdmin {
			utilities.WriteError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	}
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(a *app.App, adminKey string, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET "+Prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	auth := identity.NewHandler(a.Identity, logger)
	mux.HandleFunc("POST "+Prefix+"/auth/signup", auth.Signup)
	mux.HandleFunc("POST "+Prefix+"/auth/login", auth.Login)

	dir := directory.NewHandler(a.Directory, logger)
	mux.HandleFunc("GET "+Prefix+"/listing", dir.List)
	mux.HandleFunc("GET "+Prefix+"/profiles/{id}", dir.Get)

	ul := unlock.NewHandler(a.Unlock, logger)
	mux.HandleFunc("POST "+Prefix+"/unlock", identity.RequireSubject(ul.Unlock))
	mux.HandleFunc("GET "+Prefix+"/unlock/{targetId}", identity.RequireSubject(ul.Check))

	acct := account.NewHandler(a.Accounts, logger)
	mux.HandleFunc("GET "+Prefix+"/accounts/me", identity.RequireSubject(acct.Me))
	mux.HandleFunc("PATCH "+Prefix+"/accounts/{id}", identity.RequireSubject(acct.Update))

	mnt := maintenance.NewHandler(a.Maintenance, logger)
	priv := func(h http.HandlerFunc) http.HandlerFunc { return RequirePrivileged(adminKey, a.Accounts, h) }
	mux.HandleFunc("POST "+Prefix+"/maintenance/sweep", priv(mnt.Sweep))
	mux.HandleFunc("GET "+Prefix+"/maintenance/stats", priv(mnt.Stats))
	mux.HandleFunc("GET "+Prefix+"/maintenance/accounts/{id}", priv(mnt.Details))
	mux.HandleFunc("DELETE "+Prefix+"/maintenance/accounts/{id}", priv(mnt.Delete))

	// outermost first: request id, logging, security headers, credential
	var handler http.Handler = identity.Middleware(a.Identity, logger)(mux)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}

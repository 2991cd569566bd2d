package router

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/movestash/service-quoting-go/internal/audit"
	"github.com/movestash/service-quoting-go/internal/auth"
	authrepo "github.com/movestash/service-quoting-go/internal/auth/repo"
	"github.com/movestash/service-quoting-go/internal/quote"
	quoterepo "github.com/movestash/service-quoting-go/internal/quote/repo"
	"github.com/movestash/service-quoting-go/internal/user"
	userrepo "github.com/movestash/service-quoting-go/internal/user/repo"
	"github.com/movestash/service-quoting-go/pkg/utilities"
)

// Config carries the auth wiring knobs.
type Config struct {
	TokenSecret []byte
	TOTPIssuer  string
	AccessTTL   string
}

// ConfigFromEnv reads auth config from env vars.
func ConfigFromEnv() Config {
	secret := os.Getenv("AUTH_TOKEN_SECRET")
	if secret == "" {
		// dev fallback; production must set a real secret
		secret = "dev-only-insecure-secret"
	}
	ttl := os.Getenv("AUTH_ACCESS_TTL")
	if ttl == "" {
		ttl = "1h"
	}
	return Config{
		TokenSecret: []byte(secret),
		TOTPIssuer:  os.Getenv("TOTP_ISSUER"),
		AccessTTL:   ttl,
	}
}

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

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			// Referrer policy
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")

			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}

			// HSTS only makes sense over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes wires repositories, services and handlers onto the standard
// library's http.ServeMux and returns the composed handler.
func RegisterRoutes(logger *zap.SugaredLogger, db *sqlx.DB, cfg Config) (http.Handler, error) {
	node, err := utilities.NewSnowflakeNode()
	if err != nil {
		return nil, err
	}
	auditRepo := audit.NewRepo(db)
	recorder := audit.NewRecorder(auditRepo, node, logger)

	users := userrepo.NewUserRepo(db)
	sessions := authrepo.NewSessionRepo(db)
	quotes := quoterepo.NewQuoteRepo(db)
	pricingRepo := quoterepo.NewPricingRepo(db)

	// idempotent schema bootstrap; real deployments run migrations first and
	// these become no-ops
	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, ensure := range []func(context.Context) error{
		users.EnsureTable,
		sessions.EnsureTable,
		quotes.EnsureTable,
		pricingRepo.EnsureTable,
		auditRepo.EnsureTable,
	} {
		if err := ensure(bootCtx); err != nil {
			return nil, err
		}
	}

	codec := auth.NewTokenCodec(cfg.TokenSecret)
	totp := auth.NewTOTPEngine(cfg.TOTPIssuer)

	authSvc := auth.NewService(users, sessions, codec, totp, recorder, logger)
	authSvc.AccessTTL = auth.ParseTTL(cfg.AccessTTL)
	authHandler := auth.NewHandler(authSvc, logger)
	gate := auth.NewMiddleware(codec, sessions, logger).Authenticate

	pricing := quote.NewPricingEngine(pricingRepo)
	quoteSvc := quote.NewService(quotes, pricing, recorder, logger)
	quoteHandler := quote.NewHandler(quoteSvc, logger)

	userSvc := user.NewService(users, recorder)
	userHandler := user.NewHandler(userSvc, logger)

	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /quoting-api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// auth flow
	mux.HandleFunc("POST /quoting-api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /quoting-api/auth/totp/setup", authHandler.SetupTOTP)
	mux.HandleFunc("POST /quoting-api/auth/totp/enable", authHandler.EnableTOTP)
	mux.HandleFunc("POST /quoting-api/auth/totp/verify", authHandler.VerifyTOTP)
	mux.Handle("POST /quoting-api/auth/logout", gate(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /quoting-api/auth/me", gate(http.HandlerFunc(authHandler.Me)))

	// staff accounts
	mux.Handle("POST /quoting-api/users", gate(http.HandlerFunc(userHandler.Provision)))
	mux.Handle("POST /quoting-api/users/password", gate(http.HandlerFunc(userHandler.ChangePassword)))

	// quotes
	mux.Handle("POST /quoting-api/quotes", gate(http.HandlerFunc(quoteHandler.Create)))
	mux.HandleFunc("GET /quoting-api/quotes/{publicID}", quoteHandler.Lookup)

	// wrap with security headers middleware then logging middleware
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
	return handler, nil
}

package middleware

import (
	"net/http"
	"sync"

	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

const SecretHeader = "X-Bridge-Secret"

// SecretChecker guards the bridge commands with a shared secret,
// known to the host only as a bcrypt hash.
type SecretChecker struct {
	secretHash   string
	allowedPaths map[string]bool

	// bcrypt is slow on purpose, remember the last secret that passed
	mutex          sync.RWMutex
	verifiedSecret string
}

func NewSecretChecker(secretHash string, allowedPaths ...string) *SecretChecker {
	allowed := make(map[string]bool, len(allowedPaths))
	for _, p := range allowedPaths {
		allowed[p] = true
	}
	return &SecretChecker{
		secretHash:   secretHash,
		allowedPaths: allowed,
	}
}

func (c *SecretChecker) valid(secret string) bool {
	if secret == "" {
		return false
	}

	c.mutex.RLock()
	verified := c.verifiedSecret
	c.mutex.RUnlock()
	if verified != "" && verified == secret {
		return true
	}

	if !pkg.CheckSecretHash(secret, c.secretHash) {
		return false
	}

	c.mutex.Lock()
	c.verifiedSecret = secret
	c.mutex.Unlock()
	return true
}

func (c *SecretChecker) Check() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, span := tracing.GlobalTracer.Start(r.Context(), "middleware.secret")
			defer span.End()

			if r.Method == http.MethodOptions || c.allowedPaths[r.URL.Path] {
				span.SetStatus(codes.Ok, "allowed")
				next.ServeHTTP(w, r)
				return
			}

			secret := r.Header.Get(SecretHeader)
			if secret == "" {
				log.Tracef("[missing secret] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "missing-secret")
				return
			}

			if !c.valid(secret) {
				log.Warnf("[invalid secret] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "invalid-secret")
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r)
		})
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/liveroom-server/internal/core"
)

// ContextKeyIdentity is the context key for the verified core.Identity.
const ContextKeyIdentity = "identity"

type identityKey struct{}

var (
	errBadAuthHeader = errors.New("invalid authorization header format")
	errMissingToken  = errors.New("missing token")
	errNoVerifier    = errors.New("token verification unavailable")
	errInvalidToken  = errors.New("invalid token")
)

// authenticate checks the bearer token of r. A presented token must be valid.
// When required is false, a request without a token passes anonymously and
// ok is false.
func authenticate(r *http.Request, verifier core.IdentityVerifier, required bool, logger *zerolog.Logger) (identity core.Identity, ok bool, err error) {
	token, err := tokenFromRequest(r)
	if err != nil {
		logger.Debug().Err(err).Msg("invalid authorization header format")
		return core.Identity{}, false, err
	}

	if token == "" {
		if required {
			logger.Debug().Str("path", r.URL.Path).Msg("missing token")
			return core.Identity{}, false, errMissingToken
		}
		return core.Identity{}, false, nil
	}

	if verifier == nil {
		logger.Warn().Msg("token presented but no verifier configured")
		return core.Identity{}, false, errNoVerifier
	}

	identity, err = verifier.Verify(token)
	if err != nil {
		logger.Debug().Err(err).Msg("invalid token")
		return core.Identity{}, false, errInvalidToken
	}
	return identity, true, nil
}

// AuthMiddleware validates bearer tokens from the Authorization header or the
// token query parameter. A presented token must be valid. When required is
// false, requests without a token continue anonymously.
func AuthMiddleware(verifier core.IdentityVerifier, required bool, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok, err := authenticate(c.Request, verifier, required, logger)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		if ok {
			c.Set(ContextKeyIdentity, identity)
		}
		c.Next()
	}
}

// RequireIdentity is AuthMiddleware for plain net/http handlers. The identity
// travels in the request context.
func RequireIdentity(verifier core.IdentityVerifier, required bool, logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok, err := authenticate(r, verifier, required, logger)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: core.ErrCodeUnauthorized})
			return
		}
		if ok {
			r = r.WithContext(context.WithValue(r.Context(), identityKey{}, identity))
		}
		next.ServeHTTP(w, r)
	})
}

// identityFrom returns the verified identity stored by AuthMiddleware.
func identityFrom(c *gin.Context) (core.Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return core.Identity{}, false
	}
	id, ok := v.(core.Identity)
	return id, ok
}

// identityFromContext returns the verified identity stored by RequireIdentity.
func identityFromContext(ctx context.Context) (core.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(core.Identity)
	return id, ok
}

func tokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		// Extract token from "Bearer <token>"
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errBadAuthHeader
		}
		return strings.TrimSpace(parts[1]), nil
	}
	// Browsers cannot set headers on WebSocket upgrades.
	return r.URL.Query().Get("token"), nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msg, Code: core.ErrCodeUnauthorized})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

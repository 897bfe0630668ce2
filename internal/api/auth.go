package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"carrental/internal/config"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	userIDHeaderDefault = "x-user-id"
	clientKeyUnknown    = "unknown"

	permReadCars        = "read:cars"
	permWriteBookings   = "write:bookings"
	permWriteGuarantors = "write:guarantors"
	permReadPoints      = "read:points"
)

var (
	errMissingAPIKey    = errors.New("missing api key")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errMissingUser      = errors.New("missing user id")
)

type ctxKey int

const (
	clientCtxKey ctxKey = iota
	userCtxKey
)

// HTTPAuth checks API keys and their permissions, applies the per-key rate
// limit and extracts the caller's user id. Identity itself is established
// upstream; the user id header is trusted.
type HTTPAuth struct {
	cfg          config.APIConfig
	clients      map[string]config.APIClientKey
	limiter      *rateLimiter
	apiKeyHeader string
	userIDHeader string
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	apiKeyHeader := strings.TrimSpace(cfg.Auth.HeaderAPIKey)
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	userIDHeader := strings.TrimSpace(cfg.Auth.HeaderUserID)
	if userIDHeader == "" {
		userIDHeader = userIDHeaderDefault
	}

	return &HTTPAuth{
		cfg:          cfg,
		clients:      m,
		limiter:      newRateLimiter(cfg.RateLimit),
		apiKeyHeader: apiKeyHeader,
		userIDHeader: userIDHeader,
	}
}

// Require guards next with an API key holding perm, then the rate limit.
func (a *HTTPAuth) Require(perm string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if a.cfg.Auth.Enabled {
			client, err := a.authenticate(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !hasPermission(client, perm) {
				writeError(w, http.StatusForbidden, errPermissionDenied.Error())
				return
			}
			ctx = context.WithValue(ctx, clientCtxKey, client.Name)
		}

		if !a.limiter.allow(a.clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if uid := strings.TrimSpace(r.Header.Get(a.userIDHeader)); uid != "" {
			ctx = context.WithValue(ctx, userCtxKey, uid)
		}
		next(w, r.WithContext(ctx))
	})
}

func (a *HTTPAuth) authenticate(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader))
	if apiKey == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}
	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	return client, nil
}

// hasPermission treats a key without a permission list as unrestricted.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// callerID returns the user id the request acts as.
func callerID(r *http.Request) (string, error) {
	uid, _ := r.Context().Value(userCtxKey).(string)
	if uid == "" {
		return "", errMissingUser
	}
	return uid, nil
}

func clientName(r *http.Request) string {
	name, _ := r.Context().Value(clientCtxKey).(string)
	return name
}

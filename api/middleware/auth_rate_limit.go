package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/cautela-backend/api/responses"
	pkgerrors "github.com/angelmondragon/cautela-backend/pkg/errors"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
)

// Login bodies are tiny; anything larger is not worth buffering for a rate key.
const maxIdentityBodyBytes = 64 << 10

// rateLimiterStore counts hits in a fixed window and reports when it resets.
type rateLimiterStore interface {
	Hit(ctx context.Context, scope string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitPolicy defines the throttling parameters for a traffic surface.
// The identity limit applies to the "login" field of a JSON body.
type RateLimitPolicy struct {
	name          string
	window        time.Duration
	ipLimit       int
	identityLimit int
}

// NewRateLimitPolicy builds a policy with the supplied window and limits.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, identityLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:          strings.ToLower(strings.TrimSpace(name)),
		window:        window,
		ipLimit:       ipLimit,
		identityLimit: identityLimit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.identityLimit > 0)
}

func (p RateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "auth"
	}
	return p.name
}

func (p RateLimitPolicy) ipKey(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("ip:%s:%s", p.normalizedName(), ip)
}

func (p RateLimitPolicy) identityKey(hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("login:%s:%s", p.normalizedName(), hash)
}

// RateLimit enforces per-IP and per-identity fixed windows backed by Redis.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if policy.ipLimit > 0 {
				if key := policy.ipKey(ip); key != "" {
					hit, err := allow(ctx, store, key, policy.window, int64(policy.ipLimit))
					if err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					}
					if !hit.allowed {
						respondRateLimited(ctx, logg, w, policy, "ip", ip, "", hit, policy.ipLimit)
						return
					}
				}
			}

			if policy.identityLimit > 0 && r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxIdentityBodyBytes))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if identity := normalizeIdentity(extractLogin(body)); identity != "" {
					hash := hashValue(identity)
					hit, err := allow(ctx, store, policy.identityKey(hash), policy.window, int64(policy.identityLimit))
					if err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					}
					if !hit.allowed {
						respondRateLimited(ctx, logg, w, policy, "login", "", hash, hit, policy.identityLimit)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

type windowHit struct {
	allowed bool
	count   int64
	resetIn time.Duration
}

func allow(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int64) (windowHit, error) {
	count, resetIn, err := store.Hit(ctx, key, window)
	if err != nil {
		return windowHit{}, err
	}
	if resetIn <= 0 || resetIn > window {
		resetIn = window
	}
	return windowHit{allowed: count <= limit, count: count, resetIn: resetIn}, nil
}

// retryAfterSeconds rounds up so clients never retry inside the closed window.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, scope, ip, identityHash string, hit windowHit, limit int) {
	retryAfter := retryAfterSeconds(hit.resetIn)
	if logg != nil {
		fields := map[string]any{
			"scope":               scope,
			"policy":              policy.normalizedName(),
			"attempts":            hit.count,
			"limit":               limit,
			"retry_after_seconds": retryAfter,
		}
		if ip != "" {
			fields["ip"] = ip
		}
		if identityHash != "" {
			fields["login_hash"] = identityHash
		}
		logg.Warn(logg.WithFields(ctx, fields), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractLogin(payload []byte) string {
	var body struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Login
}

func normalizeIdentity(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

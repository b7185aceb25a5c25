package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/arashthr/memex/internal/auth/context/loggercontext"
	"github.com/arashthr/memex/internal/auth/context/principalcontext"
	"github.com/arashthr/memex/internal/errors"
	"github.com/arashthr/memex/internal/metrics"
	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/ratelimit"
	"github.com/arashthr/memex/internal/types"
	"github.com/arashthr/memex/internal/wire"
)

type State int

const (
	Unauthenticated State = iota
	Challenged
	Authenticated
)

func (s State) String() string {
	switch s {
	case Challenged:
		return "challenged"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Resolver checks a username and password pair. Implementations own the
// password comparison; a false result is not an error.
type Resolver interface {
	Resolve(ctx context.Context, username, password string) (bool, error)
}

// ProfileStore resolves an authenticated login to the profile it acts as.
type ProfileStore interface {
	DefaultProfileForLogin(ctx context.Context, loginName string) (*models.Profile, error)
}

const UnauthorizedBody = "401 Authorization Required"

// BasicAuth runs the HTTP Basic handshake for one realm.
type BasicAuth struct {
	Realm    string
	Resolver Resolver
}

// ParseBasic decodes an Authorization header value. The credentials split
// on the first colon, so passwords may contain colons. Both parts must be
// non-empty and the decoded text printable.
func ParseBasic(header string) (username, password string, ok bool) {
	scheme, encoded, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(decoded) == 0 {
		return "", "", false
	}
	if !printable(decoded) {
		return "", "", false
	}
	username, password, found = strings.Cut(string(decoded), ":")
	if !found || username == "" || password == "" {
		return "", "", false
	}
	return username, password, true
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Authenticate moves a request from Unauthenticated to Challenged or
// Authenticated. An error means the resolver itself failed.
func (ba BasicAuth) Authenticate(r *http.Request) (types.Principal, State, error) {
	username, password, ok := ParseBasic(r.Header.Get("Authorization"))
	if !ok {
		return types.Principal{}, Challenged, nil
	}
	valid, err := ba.Resolver.Resolve(r.Context(), username, password)
	if err != nil {
		return types.Principal{}, Unauthenticated, fmt.Errorf("resolving credentials: %w", err)
	}
	if !valid {
		return types.Principal{}, Challenged, nil
	}
	return types.Principal{Username: username, Realm: ba.Realm}, Authenticated, nil
}

// Challenge writes the 401 response asking the client for credentials.
func (ba BasicAuth) Challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, ba.Realm))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(UnauthorizedBody))
}

// BasicMiddleware authenticates every request and resolves the caller's
// default profile before handing over to the sync handlers.
type BasicMiddleware struct {
	Auth     BasicAuth
	Profiles ProfileStore
	Limiter  *ratelimit.FailureLimiter
	// TrustedProxies may set X-Forwarded-For. Everyone else is throttled
	// by their socket address.
	TrustedProxies []netip.Prefix
}

func (bmw BasicMiddleware) RequireProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := loggercontext.Logger(r.Context())
		ip := ratelimit.ClientIP(r, bmw.TrustedProxies)

		if bmw.Limiter.Blocked(ip) {
			metrics.AuthFailures.WithLabelValues("throttled").Inc()
			logger.Warnw("too many failed logins", "ip", ip)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		principal, state, err := bmw.Auth.Authenticate(r)
		if err != nil {
			logger.Errorw("basic auth", "error", err)
			writeServerError(w)
			return
		}
		if state != Authenticated {
			metrics.AuthFailures.WithLabelValues("credentials").Inc()
			if r.Header.Get("Authorization") != "" {
				bmw.Limiter.Fail(ip)
				logger.Infow("rejected credentials", "ip", ip)
			}
			bmw.Auth.Challenge(w)
			return
		}
		bmw.Limiter.Reset(ip)

		profile, err := bmw.Profiles.DefaultProfileForLogin(r.Context(), principal.Username)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				metrics.AuthFailures.WithLabelValues("no_profile").Inc()
				logger.Warnw("login has no profile", "login", principal.Username)
				bmw.Auth.Challenge(w)
				return
			}
			logger.Errorw("resolving profile", "login", principal.Username, "error", err)
			writeServerError(w)
			return
		}

		ctx := principalcontext.WithPrincipal(r.Context(), principal)
		ctx = principalcontext.WithProfile(ctx, profile)
		ctx = loggercontext.WithLogger(ctx, logger.With("user", principal.Username))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeServerError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", wire.ContentType)
	w.WriteHeader(http.StatusInternalServerError)
	wire.WriteResult(w, wire.SomethingWentWrong)
}

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sentra-auth/sentra/internal/shared"
)

// SessionManager issues cookie sessions backed by Redis. The session value
// is only the authenticated user id; everything else the request needs comes
// from the data store or the permission resolver.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Create stores a new session for the user and writes the cookie.
func (sm *SessionManager) Create(ctx context.Context, w http.ResponseWriter, userID int64) (string, error) {
	id := uuid.NewString()
	if err := sm.client.Set(ctx, sm.redisKey(id), strconv.FormatInt(userID, 10), sm.ttl).Err(); err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return id, nil
}

// Resolve returns the user id for the request's session cookie, if any.
func (sm *SessionManager) Resolve(ctx context.Context, r *http.Request) (int64, bool, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return 0, false, nil
		}
		return 0, false, err
	}
	raw, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return userID, true, nil
}

// Destroy removes the session and expires the cookie.
func (sm *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(sm.cookieName)
	if err == nil {
		if err := sm.client.Del(ctx, sm.redisKey(cookie.Value)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Middleware resolves the session cookie and stores the principal in context.
// Requests without a valid session pass through unauthenticated; route guards
// decide what requires one.
func (sm *SessionManager) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok, err := sm.Resolve(r.Context(), r)
			if err != nil {
				if logger != nil {
					logger.Error("resolve session", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if ok {
				ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{UserID: userID})
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "sentra:session:" + id
}

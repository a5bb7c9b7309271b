package authz

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sentra-auth/sentra/internal/observability"
	"github.com/sentra-auth/sentra/internal/shared"
)

// Resolver answers "does user U currently hold permission P?".
//
// The effective permission set of a user is the union of the role table entry
// for the user's current role and every non-expired explicit grant. The
// resolver caches that union per user; HasPermission and UserPermissions share
// the same cache entry.
type Resolver struct {
	repo    Repository
	table   *RoleTable
	cache   *Cache
	logger  *slog.Logger
	metrics *observability.AuthzMetrics
	group   singleflight.Group

	now func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository, table *RoleTable, cache *Cache, logger *slog.Logger, metrics *observability.AuthzMetrics) *Resolver {
	return &Resolver{
		repo:    repo,
		table:   table,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// HasPermission reports whether the user currently holds the permission.
// A user without a profile row holds nothing; that is not an error. Data
// store failures propagate so callers can distinguish "denied" from
// "couldn't check" — they never silently grant.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, perm Permission) (bool, error) {
	set, err := r.resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// UserPermissions returns the user's whole effective permission set, sorted.
func (r *Resolver) UserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	set, err := r.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.List(), nil
}

// Invalidate drops the user's cached permission set.
func (r *Resolver) Invalidate(userID int64) {
	r.cache.Invalidate(userID)
}

func (r *Resolver) resolve(ctx context.Context, userID int64) (PermissionSet, error) {
	if set, ok := r.cache.Get(userID); ok {
		return set, nil
	}

	// Coalesce concurrent misses for the same user into one store round-trip.
	resultChan := r.group.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return r.resolveFromStore(ctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

func (r *Resolver) resolveFromStore(ctx context.Context, userID int64) (PermissionSet, error) {
	if r.metrics != nil {
		r.metrics.Resolutions.Inc()
	}

	profile, err := r.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Fail closed: an unknown user holds no permissions. Not cached,
			// so a user created moments later resolves immediately.
			return PermissionSet{}, nil
		}
		return nil, err
	}

	if !profile.IsActive {
		// Suspended accounts hold nothing while suspended. Cached, so the
		// entry is dropped by the invalidate that accompanies reactivation.
		set := PermissionSet{}
		r.cache.Set(userID, set)
		return set, nil
	}

	set := r.table.PermissionsFor(profile.Role)

	grants, err := r.repo.ListGrants(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	for _, grant := range grants {
		if grant.Active(now) {
			set.Add(grant.Permission)
		}
	}

	r.cache.Set(userID, set)
	if r.logger != nil {
		r.logger.Debug("resolved permissions",
			slog.Int64("user_id", userID),
			slog.Int("count", len(set)))
	}
	return set, nil
}

package task

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Directory is the chat platform's user listing. Implementations may be slow;
// results are cached through the UserCache.
type Directory interface {
	LookupUser(ctx context.Context, name, teamID string) (*User, error)
}

// CachedResolver looks mentions up in the local user cache first and falls
// back to the platform directory, caching any hit.
type CachedResolver struct {
	cache     UserCache
	directory Directory
	log       *zap.Logger
}

func NewCachedResolver(cache UserCache, directory Directory, log *zap.Logger) *CachedResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedResolver{cache: cache, directory: directory, log: log.Named("resolver")}
}

func (r *CachedResolver) LookupByMention(ctx context.Context, name, teamID string) (*User, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return nil, nil
	}

	u, err := r.cache.FindUserByName(ctx, name, teamID)
	if err != nil {
		return nil, fmt.Errorf("lookup cached user %q: %w", name, err)
	}
	if u != nil {
		return u, nil
	}

	if r.directory == nil {
		return nil, nil
	}
	u, err = r.directory.LookupUser(ctx, name, teamID)
	if err != nil {
		// Directory outages must not block task creation.
		r.log.Warn("directory lookup failed", zap.String("name", name), zap.String("team", teamID), zap.Error(err))
		return nil, nil
	}
	if u == nil {
		return nil, nil
	}

	u.TeamID = teamID
	if err := r.cache.UpsertUser(ctx, *u); err != nil {
		r.log.Warn("cache user failed", zap.String("user", u.ID), zap.Error(err))
	}
	return u, nil
}

// Package prefs persists per-user console preferences in Redis: list view
// modes, the last dashboard visit and a cached copy of the user profile.
// Entries never expire.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wrightcommerce/shopadmin/internal/listview"
)

const keyPrefix = "prefs"

// Store reads and writes preferences.
type Store struct {
	client *redis.Client
	now    func() time.Time
}

// NewStore constructs a Store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

var _ listview.PreferenceStore = (*Store)(nil)

// ViewMode returns the stored mode for owner and entity, list when unset.
func (s *Store) ViewMode(ctx context.Context, owner, entity string) (listview.ViewMode, error) {
	raw, err := s.client.Get(ctx, key(owner, "viewmode", entity)).Result()
	if errors.Is(err, redis.Nil) {
		return listview.ViewList, nil
	}
	if err != nil {
		return listview.ViewList, fmt.Errorf("prefs: view mode: %w", err)
	}
	mode, _ := listview.ParseViewMode(raw)
	return mode, nil
}

// SetViewMode stores mode for owner and entity.
func (s *Store) SetViewMode(ctx context.Context, owner, entity string, mode listview.ViewMode) error {
	if err := s.client.Set(ctx, key(owner, "viewmode", entity), string(mode), 0).Err(); err != nil {
		return fmt.Errorf("prefs: set view mode: %w", err)
	}
	return nil
}

// TouchVisit records a dashboard visit and returns the previous one. A zero
// time means owner never visited before.
func (s *Store) TouchVisit(ctx context.Context, owner string) (time.Time, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)
	prev, err := s.client.GetSet(ctx, key(owner, "last_visit"), now).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("prefs: touch visit: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, prev)
	if err != nil {
		return time.Time{}, nil
	}
	return at, nil
}

// Profile decodes the cached profile of owner into dest. It reports false
// when nothing is cached.
func (s *Store) Profile(ctx context.Context, owner string, dest any) (bool, error) {
	raw, err := s.client.Get(ctx, key(owner, "profile")).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: profile: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("prefs: decode profile: %w", err)
	}
	return true, nil
}

// SaveProfile caches profile for owner.
func (s *Store) SaveProfile(ctx context.Context, owner string, profile any) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("prefs: encode profile: %w", err)
	}
	if err := s.client.Set(ctx, key(owner, "profile"), raw, 0).Err(); err != nil {
		return fmt.Errorf("prefs: save profile: %w", err)
	}
	return nil
}

func key(owner string, parts ...string) string {
	return strings.Join(append([]string{keyPrefix, owner}, parts...), ":")
}

package service

import (
	"context"

	"github.com/andresuchdata/demand-recovery/internal/cache"
	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/repository"
	"github.com/rs/zerolog/log"
)

// ProfileService reads and writes pair profiles through the cache.
type ProfileService struct {
	repo  repository.ProfileRepository
	cache cache.ProfileCache
}

func NewProfileService(repo repository.ProfileRepository, cacheImpl cache.ProfileCache) *ProfileService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopProfileCache()
	}
	return &ProfileService{repo: repo, cache: cacheImpl}
}

// GetProfiles returns the persisted profiles of keys. Cache misses are read
// from the repository and written back. An empty key list loads every profile
// straight from the repository.
func (s *ProfileService) GetProfiles(ctx context.Context, keys []domain.PairKey) (map[domain.PairKey]domain.PairProfile, error) {
	if len(keys) == 0 {
		return s.repo.GetProfiles(ctx, nil)
	}

	found, missing, err := s.cache.GetProfiles(ctx, keys)
	if err != nil {
		log.Warn().Err(err).Msg("profiles: cache get failed")
		found, missing = map[domain.PairKey]domain.PairProfile{}, keys
	}
	if len(missing) == 0 {
		return found, nil
	}

	loaded, err := s.repo.GetProfiles(ctx, missing)
	if err != nil {
		return nil, err
	}

	fill := make([]domain.PairProfile, 0, len(loaded))
	for key, p := range loaded {
		found[key] = p
		fill = append(fill, p)
	}
	if err := s.cache.SetProfiles(ctx, fill); err != nil {
		log.Warn().Err(err).Msg("profiles: cache set failed")
	}

	log.Debug().
		Int("requested", len(keys)).
		Int("cache_misses", len(missing)).
		Int("unknown", len(missing)-len(loaded)).
		Msg("profiles loaded")
	return found, nil
}

// GetProfile returns one profile, or nil when the pair has never been recovered.
func (s *ProfileService) GetProfile(ctx context.Context, key domain.PairKey) (*domain.PairProfile, error) {
	profiles, err := s.GetProfiles(ctx, []domain.PairKey{key})
	if err != nil {
		return nil, err
	}
	p, ok := profiles[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SaveProfiles persists profiles and refreshes their cache entries.
func (s *ProfileService) SaveProfiles(ctx context.Context, profiles []domain.PairProfile) error {
	if err := s.repo.UpsertProfiles(ctx, profiles); err != nil {
		return err
	}
	if err := s.cache.SetProfiles(ctx, profiles); err != nil {
		log.Warn().Err(err).Msg("profiles: cache set failed")
	}
	return nil
}

// ReplaceProfiles persists the profiles of a full run. Every cached entry is
// dropped first so pairs that left the batch are not served stale.
func (s *ProfileService) ReplaceProfiles(ctx context.Context, profiles []domain.PairProfile) error {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("profiles: cache invalidation failed")
	}
	return s.SaveProfiles(ctx, profiles)
}

// Package entitlement resolves how many numbers a tenant may send from at
// once.
package entitlement

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultNumberLimit applies when the plan cannot be resolved.
const DefaultNumberLimit = 1

// Quota is the cached entitlement of one tenant.
type Quota struct {
	PlanID      string `json:"planId"`
	NumberLimit int    `json:"numberLimit"`
}

type Service interface {
	Quota(ctx context.Context, userID string) Quota
	NumberLimit(ctx context.Context, userID string) int
}

type service struct {
	repo  Repository
	log   zerolog.Logger
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]Quota
}

// NewService memoizes quotas for the life of the process. Plan changes are
// not picked up until restart.
func NewService(r Repository, log zerolog.Logger) Service {
	return &service{
		repo:  r,
		log:   log,
		cache: make(map[string]Quota),
	}
}

func (s *service) NumberLimit(ctx context.Context, userID string) int {
	return s.Quota(ctx, userID).NumberLimit
}

func (s *service) Quota(ctx context.Context, userID string) Quota {
	s.mu.RLock()
	q, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return q
	}

	v, _, _ := s.group.Do(userID, func() (interface{}, error) {
		s.mu.RLock()
		q, ok := s.cache[userID]
		s.mu.RUnlock()
		if ok {
			return q, nil
		}

		q = s.lookup(ctx, userID)
		s.mu.Lock()
		s.cache[userID] = q
		s.mu.Unlock()
		return q, nil
	})
	return v.(Quota)
}

// lookup never fails; any miss degrades to the default limit.
func (s *service) lookup(ctx context.Context, userID string) Quota {
	log := s.log.With().Str("user", userID).Logger()

	planID, err := s.repo.GetUserPlan(ctx, userID)
	if err != nil || planID == "" {
		log.Warn().Err(err).Msg("no plan for user, using default number limit")
		return Quota{NumberLimit: DefaultNumberLimit}
	}

	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil || plan.NumberLimit <= 0 {
		log.Warn().Err(err).Str("plan", planID).Msg("plan lookup failed, using default number limit")
		return Quota{PlanID: planID, NumberLimit: DefaultNumberLimit}
	}

	log.Debug().Str("plan", planID).Int("number_limit", plan.NumberLimit).Msg("resolved tenant quota")
	return Quota{PlanID: planID, NumberLimit: plan.NumberLimit}
}

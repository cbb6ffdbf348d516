package entitlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/wasender/pkg/entities"
)

type fakeRepo struct {
	plans   map[string]string
	limits  map[string]int
	calls   atomic.Int32
	latency time.Duration
}

func (r *fakeRepo) GetUserPlan(ctx context.Context, userID string) (string, error) {
	r.calls.Add(1)
	time.Sleep(r.latency)
	plan, ok := r.plans[userID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return plan, nil
}

func (r *fakeRepo) GetPlan(ctx context.Context, planID string) (entities.Plan, error) {
	limit, ok := r.limits[planID]
	if !ok {
		return entities.Plan{}, errors.New("connection refused")
	}
	return entities.Plan{ID: planID, NumberLimit: limit}, nil
}

func TestQuotaResolvesPlanLimit(t *testing.T) {
	repo := &fakeRepo{plans: map[string]string{"u1": "pro"}, limits: map[string]int{"pro": 3}}
	svc := NewService(repo, zerolog.Nop())

	q := svc.Quota(context.Background(), "u1")
	assert.Equal(t, Quota{PlanID: "pro", NumberLimit: 3}, q)
	assert.Equal(t, 3, svc.NumberLimit(context.Background(), "u1"))
	assert.EqualValues(t, 1, repo.calls.Load())
}

func TestQuotaDefaultsOnFailure(t *testing.T) {
	repo := &fakeRepo{plans: map[string]string{"u2": "ghost"}, limits: map[string]int{}}
	svc := NewService(repo, zerolog.Nop())

	assert.Equal(t, DefaultNumberLimit, svc.NumberLimit(context.Background(), "missing"))
	assert.Equal(t, DefaultNumberLimit, svc.NumberLimit(context.Background(), "u2"))
}

func TestQuotaIsMemoized(t *testing.T) {
	repo := &fakeRepo{plans: map[string]string{"u1": "pro"}, limits: map[string]int{"pro": 2}}
	svc := NewService(repo, zerolog.Nop())

	svc.NumberLimit(context.Background(), "u1")
	repo.limits["pro"] = 10
	assert.Equal(t, 2, svc.NumberLimit(context.Background(), "u1"))
	assert.EqualValues(t, 1, repo.calls.Load())
}

func TestConcurrentMissesLookupOnce(t *testing.T) {
	repo := &fakeRepo{
		plans:   map[string]string{"u1": "pro"},
		limits:  map[string]int{"pro": 4},
		latency: 50 * time.Millisecond,
	}
	svc := NewService(repo, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 4, svc.NumberLimit(context.Background(), "u1"))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, repo.calls.Load())
}

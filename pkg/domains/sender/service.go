// Package sender runs resumable bulk send jobs, one worker per number, with
// a per-tenant cap on concurrent workers.
package sender

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/wasender/pkg/config"
	"github.com/wasender/pkg/entities"
	"github.com/wasender/pkg/metrics"
	"github.com/wasender/pkg/publisher"
)

// Messenger delivers one message through a session.
type Messenger interface {
	Send(ctx context.Context, sessionID, phone, text string) error
}

// Quotas resolves how many workers a tenant may run at once.
type Quotas interface {
	NumberLimit(ctx context.Context, userID string) int
}

type Service interface {
	StartSending(ctx context.Context, job Job) (Outcome, error)
	StopSending(ctx context.Context, numberID string) Status
	ResetSendingState(ctx context.Context, numberID string) Status
	GetSendingStatus(numberID string) Status
	Owner(ctx context.Context, numberID string) (string, bool)
	Close(ctx context.Context)
}

type Options struct {
	RetryMax     int
	RetryBackoff time.Duration
}

func OptionsFromConfig(c config.Sender) Options {
	return Options{RetryMax: c.RetryMax, RetryBackoff: c.RetryBackoff}
}

type Deps struct {
	Messenger  Messenger
	Quotas     Quotas
	Repository Repository
	Publisher  publisher.Publisher
	Logger     zerolog.Logger
	Options    Options
}

type record struct {
	job    Job
	status Status

	// persistMu orders writes of this record to the repository.
	persistMu sync.Mutex
}

type queued struct {
	job     Job
	limit   int
	resumed *int
}

type service struct {
	messenger Messenger
	quotas    Quotas
	repo      Repository
	pub       publisher.Publisher
	log       zerolog.Logger
	opts      Options

	mu      sync.Mutex
	records map[string]*record
	workers map[string]*worker
	active  map[string]map[string]struct{}
	queue   []queued

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(d Deps) Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &service{
		messenger: d.Messenger,
		quotas:    d.Quotas,
		repo:      d.Repository,
		pub:       d.Publisher,
		log:       d.Logger,
		opts:      d.Options,
		records:   make(map[string]*record),
		workers:   make(map[string]*worker),
		active:    make(map[string]map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *service) StartSending(ctx context.Context, job Job) (Outcome, error) {
	if err := job.validate(); err != nil {
		return "", err
	}
	log := s.log.With().Str("number", job.NumberID).Str("user", job.UserID).Logger()

	s.mu.Lock()
	_, running := s.workers[job.NumberID]
	waiting := s.queuedLocked(job.NumberID) >= 0
	_, hasRecord := s.records[job.NumberID]
	s.mu.Unlock()
	if running {
		return "", ErrAlreadyRunning
	}
	if waiting {
		return Queued, nil
	}

	limit := s.quotas.NumberLimit(ctx, job.UserID)

	var resumed *int
	if job.ForceStartIndex == nil && !hasRecord {
		resumed = s.loadCursor(ctx, job.NumberID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// State may have moved while the lookups ran.
	if _, running := s.workers[job.NumberID]; running {
		return "", ErrAlreadyRunning
	}
	if s.queuedLocked(job.NumberID) >= 0 {
		return Queued, nil
	}

	if len(s.active[job.UserID]) >= limit {
		s.queue = append(s.queue, queued{job: job, limit: limit, resumed: resumed})
		s.observeLocked()
		log.Info().Int("number_limit", limit).Int("queue", len(s.queue)).Msg("number limit reached, job queued")
		s.publish(EventQueued, s.statusLocked(job.NumberID), "")
		return Queued, nil
	}

	s.launchLocked(job, resumed)
	return Started, nil
}

// loadCursor reads the persisted cursor of numberID, if any.
func (s *service) loadCursor(ctx context.Context, numberID string) *int {
	if s.repo == nil {
		return nil
	}
	row, err := s.repo.Load(ctx, numberID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn().Err(err).Str("number", numberID).Msg("failed to load persisted progress")
		}
		return nil
	}
	idx := row.LastSentIndex
	return &idx
}

// launchLocked registers the record and worker and starts the send loop.
func (s *service) launchLocked(job Job, resumed *int) {
	total := len(job.Recipients)
	last := -1
	switch {
	case job.ForceStartIndex != nil:
		last = *job.ForceStartIndex - 1
	case s.records[job.NumberID] != nil:
		last = s.records[job.NumberID].status.LastSentIndex
	case resumed != nil:
		last = *resumed
	}
	if last < -1 {
		last = -1
	}
	// A finished stored cursor starts the campaign over. A forced index is
	// range checked by validate and taken as is.
	if job.ForceStartIndex == nil && last >= total-1 {
		last = -1
	}

	rec := &record{
		job: job,
		status: Status{
			NumberID:      job.NumberID,
			IsSending:     true,
			SentCount:     last + 1,
			TotalCount:    total,
			LastSentIndex: last,
		},
	}
	s.records[job.NumberID] = rec

	w := newWorker()
	s.workers[job.NumberID] = w
	if s.active[job.UserID] == nil {
		s.active[job.UserID] = make(map[string]struct{})
	}
	s.active[job.UserID][job.NumberID] = struct{}{}
	s.observeLocked()

	s.log.Info().
		Str("number", job.NumberID).
		Str("session", job.SessionID).
		Int("start_index", last+1).
		Int("total", total).
		Msg("starting background sending")
	s.publish(EventStarted, rec.status, "")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(rec, w)
	}()
}

func (s *service) StopSending(ctx context.Context, numberID string) Status {
	s.mu.Lock()
	if i := s.queuedLocked(numberID); i >= 0 {
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
	}

	var rec *record
	if w, ok := s.workers[numberID]; ok {
		w.signal()
		rec = s.records[numberID]
		if rec != nil {
			rec.status.IsSending = false
			s.leaveLocked(rec.job.UserID, numberID)
		}
		s.promoteLocked()
	}
	s.observeLocked()
	status := s.statusLocked(numberID)
	s.mu.Unlock()

	s.log.Info().Str("number", numberID).Msg("background sending stopped")
	s.publish(EventStopped, status, "")
	if rec != nil {
		s.persist(ctx, rec)
	}
	return status
}

func (s *service) ResetSendingState(ctx context.Context, numberID string) Status {
	s.StopSending(ctx, numberID)

	s.mu.Lock()
	rec := s.records[numberID]
	s.mu.Unlock()
	if rec != nil {
		rec.persistMu.Lock()
		defer rec.persistMu.Unlock()
	}

	s.mu.Lock()
	delete(s.records, numberID)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Delete(ctx, numberID); err != nil {
			s.log.Warn().Err(err).Str("number", numberID).Msg("failed to delete persisted progress")
		}
	}

	status := zeroStatus(numberID)
	s.log.Info().Str("number", numberID).Msg("sending state reset")
	s.publish(EventReset, status, "")
	return status
}

func (s *service) GetSendingStatus(numberID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(numberID)
}

// Owner returns the tenant a number's job belongs to: the live or queued
// job first, then persisted progress.
func (s *service) Owner(ctx context.Context, numberID string) (string, bool) {
	s.mu.Lock()
	if rec, ok := s.records[numberID]; ok {
		s.mu.Unlock()
		return rec.job.UserID, true
	}
	if i := s.queuedLocked(numberID); i >= 0 {
		userID := s.queue[i].job.UserID
		s.mu.Unlock()
		return userID, true
	}
	s.mu.Unlock()

	if s.repo == nil {
		return "", false
	}
	row, err := s.repo.Load(ctx, numberID)
	if err != nil || row.UserID == "" {
		return "", false
	}
	return row.UserID, true
}

func (s *service) statusLocked(numberID string) Status {
	status := zeroStatus(numberID)
	if rec, ok := s.records[numberID]; ok {
		status = rec.status
	}
	status.Queued = s.queuedLocked(numberID) >= 0
	return status
}

func (s *service) queuedLocked(numberID string) int {
	for i, q := range s.queue {
		if q.job.NumberID == numberID {
			return i
		}
	}
	return -1
}

func (s *service) leaveLocked(userID, numberID string) {
	set := s.active[userID]
	delete(set, numberID)
	if len(set) == 0 {
		delete(s.active, userID)
	}
}

// promoteLocked starts the head of the queue if its tenant has room. A head
// whose tenant is still at its limit stays at the front.
func (s *service) promoteLocked() {
	if len(s.queue) == 0 || s.ctx.Err() != nil {
		return
	}
	next := s.queue[0]
	if _, running := s.workers[next.job.NumberID]; running {
		return
	}
	if len(s.active[next.job.UserID]) >= next.limit {
		return
	}
	s.queue = s.queue[1:]
	s.log.Info().Str("number", next.job.NumberID).Str("user", next.job.UserID).Msg("promoting queued job")
	s.launchLocked(next.job, next.resumed)
}

// complete runs when a worker exits. The worker stays registered until its
// final state is published and persisted.
func (s *service) complete(rec *record, w *worker, finished bool) {
	id := rec.job.NumberID

	rec.persistMu.Lock()
	s.mu.Lock()
	current := s.records[id] == rec
	if current {
		rec.status.IsSending = false
	}
	status := rec.status
	s.mu.Unlock()

	if current {
		if finished {
			s.log.Info().
				Str("number", id).
				Int("sent", status.SentCount).
				Int("failed", status.FailedCount).
				Msg("finished sending all messages")
			s.publish(EventFinished, status, "")
		}
		s.save(s.ctx, rec)
	}
	rec.persistMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers[id] == w {
		delete(s.workers, id)
	}
	s.leaveLocked(rec.job.UserID, id)
	s.promoteLocked()
	s.observeLocked()
}

func (s *service) observeLocked() {
	n := 0
	for _, set := range s.active {
		n += len(set)
	}
	metrics.ActiveWorkers.Set(float64(n))
	metrics.QueuedJobs.Set(float64(len(s.queue)))
}

func (s *service) publish(event string, status Status, reason string) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(publisher.SenderChannel(status.NumberID), StatusEvent{Event: event, Status: status, Error: reason})
}

// persist writes the current state of rec unless it was reset meanwhile.
func (s *service) persist(ctx context.Context, rec *record) {
	rec.persistMu.Lock()
	defer rec.persistMu.Unlock()
	s.save(ctx, rec)
}

// save is persist for callers already holding rec.persistMu.
func (s *service) save(ctx context.Context, rec *record) {
	if s.repo == nil {
		return
	}

	s.mu.Lock()
	live := s.records[rec.job.NumberID] == rec
	st := rec.status
	s.mu.Unlock()
	if !live {
		return
	}

	if ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.repo.Save(ctx, entities.SendJob{
		NumberID:      rec.job.NumberID,
		UserID:        rec.job.UserID,
		SessionID:     rec.job.SessionID,
		LastSentIndex: st.LastSentIndex,
		SentCount:     st.SentCount,
		FailedCount:   st.FailedCount,
		TotalCount:    st.TotalCount,
		IsSending:     st.IsSending,
		UpdatedAt:     time.Now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("number", rec.job.NumberID).Msg("failed to persist progress")
	}
}

// Close stops every worker and waits for in-flight sends to finish.
func (s *service) Close(ctx context.Context) {
	s.mu.Lock()
	s.queue = nil
	for _, w := range s.workers {
		w.signal()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("sender shutdown timed out")
	}
	s.cancel()
}

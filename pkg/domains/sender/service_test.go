package sender

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/entities"
)

type fakeMessenger struct {
	mu sync.Mutex
	// gate, when set, holds every send until a token is received.
	gate    chan struct{}
	entered int
	fails   map[string][]error
	calls   map[string]int
	sent    []string
}

func newMessenger() *fakeMessenger {
	return &fakeMessenger{fails: map[string][]error{}, calls: map[string]int{}}
}

func (m *fakeMessenger) Send(ctx context.Context, sessionID, phone, text string) error {
	m.mu.Lock()
	gate := m.gate
	m.entered++
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[phone]++
	if queue := m.fails[phone]; len(queue) > 0 {
		m.fails[phone] = queue[1:]
		if queue[0] != nil {
			return queue[0]
		}
	}
	m.sent = append(m.sent, phone+"|"+text)
	return nil
}

func (m *fakeMessenger) sentPhones() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		for i := 0; i < len(s); i++ {
			if s[i] == '|' {
				out = append(out, s[:i])
				break
			}
		}
	}
	return out
}

type fakeQuotas map[string]int

func (q fakeQuotas) NumberLimit(ctx context.Context, userID string) int {
	if n, ok := q[userID]; ok {
		return n
	}
	return 1
}

type memRepo struct {
	mu   sync.Mutex
	rows map[string]entities.SendJob
}

func (r *memRepo) Load(ctx context.Context, numberID string) (entities.SendJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[numberID]
	if !ok {
		return entities.SendJob{}, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *memRepo) Save(ctx context.Context, job entities.SendJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[job.NumberID] = job
	return nil
}

func (r *memRepo) Delete(ctx context.Context, numberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, numberID)
	return nil
}

func (r *memRepo) get(numberID string) (entities.SendJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[numberID]
	return row, ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (p *recordingPublisher) Publish(channel string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if evt, ok := payload.(StatusEvent); ok {
		p.events = append(p.events, evt)
	}
}

func (p *recordingPublisher) last(numberID string) StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out StatusEvent
	for _, e := range p.events {
		if e.NumberID == numberID {
			out = e
		}
	}
	return out
}

func (p *recordingPublisher) of(numberID, event string) []StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []StatusEvent
	for _, e := range p.events {
		if e.NumberID == numberID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type SenderSuite struct {
	suite.Suite
	messenger *fakeMessenger
	quotas    fakeQuotas
	repo      *memRepo
	pub       *recordingPublisher
	svc       *service
}

func TestSenderSuite(t *testing.T) {
	suite.Run(t, new(SenderSuite))
}

func (s *SenderSuite) SetupTest() {
	s.messenger = newMessenger()
	s.quotas = fakeQuotas{"u1": 2, "u2": 1}
	s.repo = &memRepo{rows: map[string]entities.SendJob{}}
	s.pub = &recordingPublisher{}
	s.svc = s.build()
}

func (s *SenderSuite) build() *service {
	return NewService(Deps{
		Messenger:  s.messenger,
		Quotas:     s.quotas,
		Repository: s.repo,
		Publisher:  s.pub,
		Logger:     zerolog.Nop(),
		Options:    Options{RetryMax: 2, RetryBackoff: time.Millisecond},
	}).(*service)
}

func (s *SenderSuite) TearDownTest() {
	s.messenger.mu.Lock()
	if s.messenger.gate != nil {
		close(s.messenger.gate)
		s.messenger.gate = nil
	}
	s.messenger.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.svc.Close(ctx)
}

func job(numberID, userID string, n int) Job {
	recipients := make([]Recipient, n)
	for i := range recipients {
		recipients[i] = Recipient{Name: fmt.Sprintf("r%d", i), Phone: fmt.Sprintf("05000000%02d", i)}
	}
	return Job{
		NumberID:        numberID,
		UserID:          userID,
		SessionID:       "session-" + numberID,
		Recipients:      recipients,
		MessageTemplate: "Hi {name}",
	}
}

func (s *SenderSuite) gate() chan struct{} {
	g := make(chan struct{})
	s.messenger.mu.Lock()
	s.messenger.gate = g
	s.messenger.mu.Unlock()
	return g
}

func (s *SenderSuite) running(numberID string) bool {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	_, ok := s.svc.workers[numberID]
	return ok
}

func (s *SenderSuite) activeCount(userID string) int {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	return len(s.svc.active[userID])
}

func (s *SenderSuite) waitIdle(numberID string) {
	s.Eventually(func() bool { return !s.running(numberID) }, 2*time.Second, 2*time.Millisecond)
}

func (s *SenderSuite) TestThreeRecipientsRunToCompletion() {
	out, err := s.svc.StartSending(context.Background(), job("n1", "u1", 3))
	s.Require().NoError(err)
	s.Equal(Started, out)
	s.waitIdle("n1")

	st := s.svc.GetSendingStatus("n1")
	s.Equal(3, st.SentCount)
	s.Equal(2, st.LastSentIndex)
	s.Equal(3, st.TotalCount)
	s.False(st.IsSending)

	progress := s.pub.of("n1", EventProgress)
	s.Require().Len(progress, 3)
	for i, e := range progress {
		s.Equal(i+1, e.SentCount)
		s.Equal(i, e.LastSentIndex)
	}
	s.Len(s.pub.of("n1", EventFinished), 1)
	s.Equal([]string{"0500000000", "0500000001", "0500000002"}, s.messenger.sentPhones())

	row, ok := s.repo.get("n1")
	s.Require().True(ok)
	s.Equal(2, row.LastSentIndex)
	s.False(row.IsSending)
}

func (s *SenderSuite) TestTemplateReachesMessenger() {
	j := job("n1", "u1", 1)
	j.Recipients[0] = Recipient{Name: "Dana", Phone: "0500000000"}
	j.MessageTemplate = "Hi {name}, your number is {phone}. {שם} {טלפון} {other}"

	_, err := s.svc.StartSending(context.Background(), j)
	s.Require().NoError(err)
	s.waitIdle("n1")

	s.messenger.mu.Lock()
	defer s.messenger.mu.Unlock()
	s.Equal([]string{"0500000000|Hi Dana, your number is 0500000000. Dana 0500000000 {other}"}, s.messenger.sent)
}

func (s *SenderSuite) TestStartIsIdempotentWhileRunning() {
	g := s.gate()

	out, err := s.svc.StartSending(context.Background(), job("n1", "u1", 2))
	s.Require().NoError(err)
	s.Equal(Started, out)

	_, err = s.svc.StartSending(context.Background(), job("n1", "u1", 2))
	s.ErrorIs(err, ErrAlreadyRunning)
	s.Equal(1, s.activeCount("u1"))

	g <- struct{}{}
	g <- struct{}{}
	s.waitIdle("n1")
	s.Equal(2, s.svc.GetSendingStatus("n1").SentCount)
	s.Len(s.pub.of("n1", EventStarted), 1)
}

func (s *SenderSuite) TestStopAndResumeNeverResends() {
	j := job("n1", "u1", 4)
	j.DelaySeconds = 3600

	_, err := s.svc.StartSending(context.Background(), j)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		return s.svc.GetSendingStatus("n1").LastSentIndex == 0
	}, 2*time.Second, 2*time.Millisecond)

	st := s.svc.StopSending(context.Background(), "n1")
	s.False(st.IsSending)
	s.Equal(0, st.LastSentIndex)
	s.waitIdle("n1")
	s.Equal(0, s.svc.GetSendingStatus("n1").LastSentIndex)
	s.Len(s.pub.of("n1", EventStopped), 1)

	j.DelaySeconds = 0
	out, err := s.svc.StartSending(context.Background(), j)
	s.Require().NoError(err)
	s.Equal(Started, out)
	s.waitIdle("n1")

	s.Equal([]string{"0500000000", "0500000001", "0500000002", "0500000003"}, s.messenger.sentPhones())
	st = s.svc.GetSendingStatus("n1")
	s.Equal(3, st.LastSentIndex)
	s.Equal(4, st.SentCount)
}

func (s *SenderSuite) TestForceStartIndexWins() {
	j := job("n1", "u1", 4)
	start := 2
	j.ForceStartIndex = &start

	_, err := s.svc.StartSending(context.Background(), j)
	s.Require().NoError(err)
	s.waitIdle("n1")

	s.Equal([]string{"0500000002", "0500000003"}, s.messenger.sentPhones())
	st := s.svc.GetSendingStatus("n1")
	s.Equal(3, st.LastSentIndex)
	s.Equal(4, st.SentCount)
}

func (s *SenderSuite) TestForceStartIndexOutOfRangeIsRejected() {
	for _, start := range []int{3, 7, -1} {
		j := job("n1", "u1", 3)
		j.ForceStartIndex = &start

		_, err := s.svc.StartSending(context.Background(), j)
		s.ErrorIs(err, ErrInvalidJob, start)
	}
	s.False(s.running("n1"))
	s.Empty(s.messenger.sentPhones())
}

func (s *SenderSuite) TestForceStartIndexIgnoresFinishedCursor() {
	s.repo.rows["n1"] = entities.SendJob{NumberID: "n1", UserID: "u1", LastSentIndex: 2, TotalCount: 3}
	j := job("n1", "u1", 3)
	start := 2
	j.ForceStartIndex = &start

	_, err := s.svc.StartSending(context.Background(), j)
	s.Require().NoError(err)
	s.waitIdle("n1")

	s.Equal([]string{"0500000002"}, s.messenger.sentPhones())
}

func (s *SenderSuite) TestResumesFromPersistedProgress() {
	s.repo.rows["n1"] = entities.SendJob{NumberID: "n1", UserID: "u1", LastSentIndex: 1, TotalCount: 4}

	_, err := s.svc.StartSending(context.Background(), job("n1", "u1", 4))
	s.Require().NoError(err)
	s.waitIdle("n1")

	s.Equal([]string{"0500000002", "0500000003"}, s.messenger.sentPhones())
}

func (s *SenderSuite) TestQuotaQueuesAndPromotes() {
	g := s.gate()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		out, err := s.svc.StartSending(ctx, job(id, "u1", 1))
		s.Require().NoError(err)
		s.Equal(Started, out)
	}
	out, err := s.svc.StartSending(ctx, job("c", "u1", 1))
	s.Require().NoError(err)
	s.Equal(Queued, out)

	s.Equal(2, s.activeCount("u1"))
	s.True(s.svc.GetSendingStatus("c").Queued)
	s.False(s.running("c"))

	again, err := s.svc.StartSending(ctx, job("c", "u1", 1))
	s.NoError(err)
	s.Equal(Queued, again)

	s.svc.StopSending(ctx, "a")
	s.True(s.running("c"))
	s.False(s.svc.GetSendingStatus("c").Queued)
	s.Equal(2, s.activeCount("u1"))

	close(g)
	s.messenger.mu.Lock()
	s.messenger.gate = nil
	s.messenger.mu.Unlock()
	s.waitIdle("b")
	s.waitIdle("c")
	s.Equal(0, s.activeCount("u1"))
}

func (s *SenderSuite) TestBlockedHeadIsRequeuedAtFront() {
	g := s.gate()
	ctx := context.Background()

	_, err := s.svc.StartSending(ctx, job("x1", "u2", 1))
	s.Require().NoError(err)
	out, err := s.svc.StartSending(ctx, job("x2", "u2", 1))
	s.Require().NoError(err)
	s.Equal(Queued, out)

	_, err = s.svc.StartSending(ctx, job("y1", "u3", 1))
	s.Require().NoError(err)

	s.svc.StopSending(ctx, "y1")
	s.True(s.svc.GetSendingStatus("x2").Queued)
	s.False(s.running("x2"))

	s.svc.StopSending(ctx, "x1")
	s.True(s.running("x2"))

	close(g)
	s.messenger.mu.Lock()
	s.messenger.gate = nil
	s.messenger.mu.Unlock()
	s.waitIdle("x2")
}

func (s *SenderSuite) TestStopQueuedJob() {
	g := s.gate()
	ctx := context.Background()

	_, err := s.svc.StartSending(ctx, job("x1", "u2", 1))
	s.Require().NoError(err)
	_, err = s.svc.StartSending(ctx, job("x2", "u2", 1))
	s.Require().NoError(err)

	st := s.svc.StopSending(ctx, "x2")
	s.False(st.Queued)
	s.False(st.IsSending)

	g <- struct{}{}
	s.waitIdle("x1")
	s.False(s.running("x2"))
}

func (s *SenderSuite) TestFailuresAreSkipped() {
	s.messenger.fails["0500000001"] = []error{whatsapp.ErrRecipientNotFound}

	_, err := s.svc.StartSending(context.Background(), job("n1", "u1", 3))
	s.Require().NoError(err)
	s.waitIdle("n1")

	st := s.svc.GetSendingStatus("n1")
	s.Equal(2, st.SentCount)
	s.Equal(1, st.FailedCount)
	s.Equal(2, st.LastSentIndex)
	s.Equal(1, s.messenger.calls["0500000001"])

	warnings := s.pub.of("n1", EventWarning)
	s.Require().Len(warnings, 1)
	s.Contains(warnings[0].Error, "not found")
}

func (s *SenderSuite) TestTransportFailuresRetryWithinBound() {
	failed := fmt.Errorf("%w: timeout", whatsapp.ErrSendFailed)
	s.messenger.fails["0500000000"] = []error{failed, failed}
	s.messenger.fails["0500000001"] = []error{failed, failed, failed}

	_, err := s.svc.StartSending(context.Background(), job("n1", "u1", 2))
	s.Require().NoError(err)
	s.waitIdle("n1")

	s.Equal(3, s.messenger.calls["0500000000"])
	s.Equal(3, s.messenger.calls["0500000001"])

	st := s.svc.GetSendingStatus("n1")
	s.Equal(1, st.SentCount)
	s.Equal(1, st.FailedCount)
	s.Equal(0, st.LastSentIndex)
	s.False(st.IsSending)
}

func (s *SenderSuite) TestResetDiscardsProgress() {
	_, err := s.svc.StartSending(context.Background(), job("n1", "u1", 2))
	s.Require().NoError(err)
	s.waitIdle("n1")
	_, ok := s.repo.get("n1")
	s.Require().True(ok)

	st := s.svc.ResetSendingState(context.Background(), "n1")
	s.Equal(zeroStatus("n1"), st)
	s.Equal(zeroStatus("n1"), s.svc.GetSendingStatus("n1"))

	_, ok = s.repo.get("n1")
	s.False(ok)

	resets := s.pub.of("n1", EventReset)
	s.Require().Len(resets, 1)
	s.Equal(-1, resets[0].LastSentIndex)
	s.Equal(0, resets[0].TotalCount)
}

func (s *SenderSuite) TestResetStopsRunningJob() {
	j := job("n1", "u1", 3)
	j.DelaySeconds = 3600
	_, err := s.svc.StartSending(context.Background(), j)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		return s.svc.GetSendingStatus("n1").LastSentIndex == 0
	}, 2*time.Second, 2*time.Millisecond)

	s.svc.ResetSendingState(context.Background(), "n1")
	s.waitIdle("n1")

	s.Equal(zeroStatus("n1"), s.svc.GetSendingStatus("n1"))
	_, ok := s.repo.get("n1")
	s.False(ok)
}

func (s *SenderSuite) TestResetDuringSendIsTheLastEvent() {
	g := s.gate()
	_, err := s.svc.StartSending(context.Background(), job("n1", "u1", 2))
	s.Require().NoError(err)
	s.Eventually(func() bool {
		s.messenger.mu.Lock()
		defer s.messenger.mu.Unlock()
		return s.messenger.entered == 1
	}, 2*time.Second, 2*time.Millisecond)

	s.svc.ResetSendingState(context.Background(), "n1")

	close(g)
	s.messenger.mu.Lock()
	s.messenger.gate = nil
	s.messenger.mu.Unlock()
	s.waitIdle("n1")

	s.Equal(EventReset, s.pub.last("n1").Event)
	s.Empty(s.pub.of("n1", EventProgress))
	s.Empty(s.pub.of("n1", EventFinished))
	s.Equal(zeroStatus("n1"), s.svc.GetSendingStatus("n1"))
	_, ok := s.repo.get("n1")
	s.False(ok)
}

func (s *SenderSuite) TestOwner() {
	s.repo.rows["old"] = entities.SendJob{NumberID: "old", UserID: "u1", LastSentIndex: 0}
	g := s.gate()
	ctx := context.Background()

	_, err := s.svc.StartSending(ctx, job("x1", "u2", 1))
	s.Require().NoError(err)
	_, err = s.svc.StartSending(ctx, job("x2", "u2", 1))
	s.Require().NoError(err)

	for id, want := range map[string]string{"x1": "u2", "x2": "u2", "old": "u1"} {
		owner, ok := s.svc.Owner(ctx, id)
		s.True(ok, id)
		s.Equal(want, owner, id)
	}
	_, ok := s.svc.Owner(ctx, "nobody")
	s.False(ok)

	close(g)
	s.messenger.mu.Lock()
	s.messenger.gate = nil
	s.messenger.mu.Unlock()
	s.waitIdle("x1")
	s.waitIdle("x2")
}

func (s *SenderSuite) TestUnknownNumberHasZeroStatus() {
	st := s.svc.GetSendingStatus("nobody")
	s.Equal(Status{NumberID: "nobody", LastSentIndex: -1}, st)
}

func (s *SenderSuite) TestInvalidJobs() {
	_, err := s.svc.StartSending(context.Background(), job("n1", "u1", 0))
	s.ErrorIs(err, ErrNoRecipients)

	j := job("n1", "u1", 1)
	j.SessionID = ""
	_, err = s.svc.StartSending(context.Background(), j)
	s.ErrorIs(err, ErrInvalidJob)

	j = job("n1", "u1", 1)
	j.DelaySeconds = -1
	_, err = s.svc.StartSending(context.Background(), j)
	s.ErrorIs(err, ErrInvalidJob)
}

func TestRender(t *testing.T) {
	got := Render("Hi {name}, your number is {phone}", Recipient{Name: "Dana", Phone: "0500000000"})
	if got != "Hi Dana, your number is 0500000000" {
		t.Fatalf("unexpected render: %q", got)
	}
}

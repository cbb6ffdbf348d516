package sender

import (
	"context"
	"sync"
	"time"

	"github.com/wasender/pkg/domains/whatsapp"
)

// worker carries the cooperative stop signal of one running job.
type worker struct {
	stop chan struct{}
	once sync.Once
}

func newWorker() *worker {
	return &worker{stop: make(chan struct{})}
}

func (w *worker) signal() {
	w.once.Do(func() { close(w.stop) })
}

func (w *worker) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// wait sleeps d. It reports false when the worker was stopped first.
func (w *worker) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !w.stopped()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.stop:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// run sends to every remaining recipient in order. The stop signal is
// checked between sends; a send in flight always completes.
func (s *service) run(rec *record, w *worker) {
	job := rec.job
	log := s.log.With().Str("number", job.NumberID).Str("session", job.SessionID).Logger()
	delay := time.Duration(job.DelaySeconds * float64(time.Second))
	total := len(job.Recipients)

	s.mu.Lock()
	start := rec.status.LastSentIndex + 1
	s.mu.Unlock()

	finished := true
	defer func() { s.complete(rec, w, finished) }()

	for i := start; i < total; i++ {
		if w.stopped() {
			finished = false
			log.Info().Int("index", i).Msg("sending stopped")
			return
		}

		r := job.Recipients[i]
		err := s.deliver(w, job.SessionID, r.Phone, Render(job.MessageTemplate, r))
		if !s.apply(rec, i, err) {
			finished = false
			log.Info().Int("index", i).Msg("sending state was reset, dropping result")
			return
		}
		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("phone", r.Phone).Msg("failed to send message, skipping recipient")
			continue
		}
		log.Debug().Int("index", i).Int("total", total).Msg("message sent")

		if i < total-1 && !w.wait(s.ctx, delay) {
			finished = false
			log.Info().Int("index", i).Msg("sending stopped during delay")
			return
		}
	}
}

// apply records the outcome of the send at index i and publishes it. It
// reports false when rec was reset meanwhile; nothing is applied then.
// persistMu keeps the event ahead of a concurrent reset event.
func (s *service) apply(rec *record, i int, sendErr error) bool {
	rec.persistMu.Lock()
	defer rec.persistMu.Unlock()

	s.mu.Lock()
	if s.records[rec.job.NumberID] != rec {
		s.mu.Unlock()
		return false
	}
	if sendErr != nil {
		rec.status.FailedCount++
	} else {
		rec.status.LastSentIndex = i
		rec.status.SentCount++
	}
	st := rec.status
	s.mu.Unlock()

	if sendErr != nil {
		s.publish(EventWarning, st, sendErr.Error())
		return true
	}
	s.publish(EventProgress, st, "")
	s.save(s.ctx, rec)
	return true
}

// deliver sends one message, retrying transport failures up to RetryMax
// times with a linearly growing pause.
func (s *service) deliver(w *worker, sessionID, phone, text string) error {
	for attempt := 0; ; attempt++ {
		err := s.messenger.Send(s.ctx, sessionID, phone, text)
		if err == nil {
			return nil
		}
		if !whatsapp.IsRetryable(err) || attempt >= s.opts.RetryMax {
			return err
		}
		s.log.Debug().Err(err).Int("attempt", attempt+1).Str("phone", phone).Msg("retrying send")
		if !w.wait(s.ctx, s.opts.RetryBackoff*time.Duration(attempt+1)) {
			return err
		}
	}
}

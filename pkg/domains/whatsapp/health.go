package whatsapp

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthConcurrency = 4

// HealthCheck compares every tracked session with its transport. A CONNECTED
// session whose link is down gets a connection reset; if that does not
// restore it within the grace period, it goes through the reconnect path.
// A session whose transport came back on its own is marked CONNECTED again.
func (s *service) HealthCheck(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(healthConcurrency)

	for _, snap := range s.store.List() {
		snap := snap
		g.Go(func() error {
			s.probe(gctx, snap)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *service) probe(ctx context.Context, snap Snapshot) {
	id := snap.SessionID
	log := s.log.With().Str("session", id).Logger()
	client, gen, hasClient := s.store.Client(id)
	live := hasClient && client.IsConnected()

	switch {
	case snap.State == StateConnected && !live:
		log.Warn().Msg("session marked connected but transport is down, resetting connection")
		if hasClient {
			if err := step(log, "reset", client.ResetConnection); err == nil && s.waitLive(ctx, id, gen) {
				log.Info().Msg("connection reset restored session")
				return
			}
		}
		s.escalate(id, gen, "health check failed")

	case (snap.State == StateDisconnected || snap.State == StateInitializing) && live && client.IsLoggedIn():
		ok := s.store.UpdateGen(id, gen, func(e *entry) {
			e.state = StateConnected
			e.reconnectAttempts = 0
			e.reconnecting = false
			e.resolve(nil)
		})
		if ok {
			log.Info().Msg("transport is up, marking session connected")
			s.publish(id, "ready", "")
			s.persist(id)
		}

	case snap.State == StateDisconnected && !hasClient && snap.ReconnectAttempts >= s.opts.MaxReconnectAttempts:
		log.Info().Msg("removing session that exhausted its reconnect attempts")
		if err := s.Teardown(ctx, id); err != nil {
			log.Warn().Err(err).Msg("sweep teardown reported errors")
		}
	}
}

// waitLive polls the client of generation gen for up to the grace period.
func (s *service) waitLive(ctx context.Context, id string, gen uint64) bool {
	deadline := time.Now().Add(s.opts.HealthGrace)
	for {
		client, cur, ok := s.store.Client(id)
		if !ok || cur != gen {
			return false
		}
		if client.IsConnected() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// escalate moves a CONNECTED session onto the reconnect path. gen 0 matches
// a session that has no client at all.
func (s *service) escalate(id string, gen uint64, reason string) {
	moved := false
	s.store.Update(id, func(e *entry) {
		if (gen != 0 && e.generation != gen) || e.state != StateConnected {
			return
		}
		e.state = StateDisconnected
		moved = true
	})
	if !moved {
		return
	}
	s.publish(id, "disconnected", reason)
	s.persist(id)
	s.scheduleReconnect(id, reason)
}

package whatsapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Teardown logs the session out, destroys its client, purges its
// credentials and removes its record. Every step runs even when an earlier
// one fails; the returned error joins the failures.
func (s *service) Teardown(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	// Wake a blocked Initialize so the lock below is released promptly.
	s.store.Update(sessionID, func(e *entry) {
		e.state = StateTearingDown
		e.resolve(ErrTornDown)
	})

	unlock := s.lock(sessionID)
	defer unlock()

	log := s.log.With().Str("session", sessionID).Logger()
	log.Info().Msg("tearing down session")

	var client Client
	s.store.Update(sessionID, func(e *entry) {
		client = e.client
		e.client = nil
		e.generation++
		e.pendingCode = ""
		e.state = StateTearingDown
	})
	s.publish(sessionID, "tearing_down", "")

	var errs []error
	if client != nil {
		errs = append(errs,
			step(log, "logout", func() error {
				if !client.IsLoggedIn() {
					return nil
				}
				return client.Logout(ctx)
			}),
			step(log, "disconnect", func() error {
				client.Disconnect()
				return nil
			}),
			step(log, "close", client.Close),
		)
	}
	if s.creds != nil {
		errs = append(errs,
			step(log, "purge", func() error { return s.creds.Purge(sessionID) }),
			step(log, "recreate", func() error {
				_, err := s.creds.Ensure(sessionID)
				return err
			}),
		)
	}

	s.store.Delete(sessionID)
	s.persist(sessionID)
	s.publish(sessionID, "torn_down", "")

	err := errors.Join(errs...)
	if err != nil {
		log.Warn().Err(err).Msg("teardown finished with errors")
	} else {
		log.Info().Msg("session torn down")
	}
	return err
}

// step runs fn, turning a panic into an error so later steps still run.
func step(log zerolog.Logger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
		if err != nil {
			log.Warn().Err(err).Str("step", name).Msg("teardown step failed")
		}
	}()
	if err = fn(); err != nil {
		err = fmt.Errorf("%s: %w", name, err)
	}
	return err
}

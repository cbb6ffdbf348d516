package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/wasender/pkg/config"
	"github.com/wasender/pkg/metrics"
	"github.com/wasender/pkg/publisher"
)

type Service interface {
	Initialize(ctx context.Context, sessionID string) error
	Teardown(ctx context.Context, sessionID string) error
	Send(ctx context.Context, sessionID, phone, text string) error
	Status(sessionID string) Snapshot
	Sessions() []Snapshot
	QRCode(ctx context.Context, sessionID string) (string, error)
	OnMessage(h MessageHandler)
	HealthCheck(ctx context.Context)
	Start() error
	Close(ctx context.Context)
}

// MessageHandler receives inbound messages of CONNECTED sessions.
type MessageHandler func(ctx context.Context, sessionID string, msg InboundMessage)

type Options struct {
	CountryCode          string
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	StartupTimeout       time.Duration
	QRWait               time.Duration
	HealthSchedule       string
	HealthGrace          time.Duration
}

func OptionsFromConfig(c config.WhatsApp) Options {
	return Options{
		CountryCode:          c.CountryCode,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectBackoff:     c.ReconnectBackoff,
		StartupTimeout:       c.StartupTimeout,
		QRWait:               c.QRWait,
		HealthSchedule:       c.HealthSchedule,
		HealthGrace:          c.HealthGrace,
	}
}

type Deps struct {
	Store       *Store
	Credentials *CredentialStore
	Factory     ClientFactory
	Repository  Repository
	Publisher   publisher.Publisher
	Logger      zerolog.Logger
	Options     Options
}

// SessionEvent is the payload published on the session channel.
type SessionEvent struct {
	Event             string `json:"event"`
	SessionID         string `json:"sessionId"`
	State             State  `json:"state"`
	Connected         bool   `json:"connected"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
	QR                string `json:"qr,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

type service struct {
	opts    Options
	store   *Store
	creds   *CredentialStore
	factory ClientFactory
	repo    Repository
	pub     publisher.Publisher
	log     zerolog.Logger

	group   singleflight.Group
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	handlersMu sync.RWMutex
	handlers   []MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cron.Cron
	closed atomic.Bool
}

func NewService(d Deps) Service {
	if d.Store == nil {
		d.Store = NewStore()
	}
	if d.Options.MaxReconnectAttempts <= 0 {
		d.Options.MaxReconnectAttempts = 3
	}
	if d.Options.StartupTimeout <= 0 {
		d.Options.StartupTimeout = 60 * time.Second
	}
	if d.Options.QRWait <= 0 {
		d.Options.QRWait = 10 * time.Second
	}
	if d.Options.CountryCode == "" {
		d.Options.CountryCode = "972"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &service{
		opts:    d.Options,
		store:   d.Store,
		creds:   d.Credentials,
		factory: d.Factory,
		repo:    d.Repository,
		pub:     d.Publisher,
		log:     d.Logger,
		locks:   make(map[string]*sync.Mutex),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// lock serializes lifecycle operations (initialize, release, teardown) of
// one session. Event handling never takes it.
func (s *service) lock(id string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *service) Initialize(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if s.closed.Load() {
		return context.Canceled
	}

	// A second caller joins the in-flight attempt instead of racing it.
	ch := s.group.DoChan(sessionID, func() (any, error) {
		return nil, s.initialize(s.ctx, sessionID)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) initialize(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	log := s.log.With().Str("session", id).Logger()

	snap, exists := s.store.Get(id)
	if exists && snap.State == StateConnected {
		if client, _, ok := s.store.Client(id); ok && client.IsConnected() {
			log.Debug().Msg("client already exists and connected")
			return nil
		}
	}
	if exists {
		s.release(id)
	}

	dir, err := s.creds.Ensure(id)
	if err != nil {
		return err
	}

	settle := make(chan error, 1)
	var gen uint64
	s.store.Ensure(id)
	s.store.Update(id, func(e *entry) {
		e.generation++
		gen = e.generation
		e.state = StateInitializing
		e.pendingCode = ""
		e.settle = settle
	})
	s.publish(id, "initializing", "")
	log.Info().Msg("initializing whatsapp client")

	client, err := s.factory.NewClient(ctx, id, dir, func(evt Event) {
		s.handle(id, gen, evt)
	})
	if err != nil {
		s.failInit(id, gen)
		s.scheduleReconnect(id, "client creation failed")
		return fmt.Errorf("failed to create client: %w", err)
	}

	attached := s.store.UpdateGen(id, gen, func(e *entry) { e.client = client })
	if !attached {
		closeClient(client, log)
		return ErrTornDown
	}

	if err := client.Connect(ctx); err != nil {
		s.release(id)
		s.scheduleReconnect(id, "connect failed")
		return fmt.Errorf("failed to connect: %w", err)
	}

	timer := time.NewTimer(s.opts.StartupTimeout)
	defer timer.Stop()

	select {
	case err := <-settle:
		if err != nil {
			log.Warn().Err(err).Msg("initialize did not settle")
		}
		return err
	case <-timer.C:
		log.Warn().Dur("timeout", s.opts.StartupTimeout).Msg("client startup timed out")
		s.release(id)
		s.scheduleReconnect(id, "startup timeout")
		return ErrStartupTimeout
	case <-ctx.Done():
		s.failInit(id, gen)
		return ctx.Err()
	}
}

func (s *service) failInit(id string, gen uint64) {
	s.store.UpdateGen(id, gen, func(e *entry) {
		e.state = StateDisconnected
		e.settle = nil
	})
	s.publish(id, "disconnected", "initialize failed")
}

// release drops the client of id but keeps its record and credentials.
// Callers hold the session lock.
func (s *service) release(id string) {
	var client Client
	s.store.Update(id, func(e *entry) {
		client = e.client
		e.client = nil
		e.generation++
		e.pendingCode = ""
		e.resolve(ErrTornDown)
		if e.state != StateAuthFailed {
			e.state = StateDisconnected
		}
	})
	if client != nil {
		closeClient(client, s.log.With().Str("session", id).Logger())
	}
}

func closeClient(client Client, log zerolog.Logger) {
	step(log, "disconnect", func() error {
		client.Disconnect()
		return nil
	})
	step(log, "close", client.Close)
}

func (s *service) Send(ctx context.Context, sessionID, phone, text string) error {
	snap, ok := s.store.Get(sessionID)
	if !ok || snap.State != StateConnected {
		return ErrNotConnected
	}
	client, _, ok := s.store.Client(sessionID)
	if !ok {
		return ErrNotConnected
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	number, err := NormalizePhone(phone, s.opts.CountryCode)
	if err != nil {
		return err
	}

	to, err := client.ResolveRecipient(ctx, number)
	if err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			metrics.MessagesSent.WithLabelValues("not_found").Inc()
			return ErrRecipientNotFound
		}
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	msgID, err := client.SendText(ctx, to, text)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	metrics.MessagesSent.WithLabelValues("sent").Inc()
	s.log.Debug().Str("session", sessionID).Str("to", number).Str("message_id", msgID).Msg("message sent")
	return nil
}

func (s *service) Status(sessionID string) Snapshot {
	snap, _ := s.store.Get(sessionID)
	return snap
}

func (s *service) Sessions() []Snapshot {
	return s.store.List()
}

// QRCode initializes the session when needed and returns its pending code
// rendered as a PNG data URL.
func (s *service) QRCode(ctx context.Context, sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}

	snap, exists := s.store.Get(sessionID)
	if snap.State == StateConnected {
		return "", ErrAlreadyConnected
	}
	if !exists || snap.State == StateDisconnected || snap.State == StateUninitialized {
		if err := s.Initialize(ctx, sessionID); err != nil {
			return "", err
		}
	}

	deadline := time.NewTimer(s.opts.QRWait)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap, _ = s.store.Get(sessionID)
		if snap.State == StateConnected {
			return "", ErrAlreadyConnected
		}
		if snap.PendingCode != "" {
			return RenderQR(snap.PendingCode)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", ErrNoQRCode
		case <-ticker.C:
		}
	}
}

func (s *service) OnMessage(h MessageHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// handle is the single transition function for transport events. It only
// touches the store; slow work is handed to goroutines.
func (s *service) handle(id string, gen uint64, evt Event) {
	log := s.log.With().Str("session", id).Str("event", string(evt.Kind)).Logger()

	switch evt.Kind {
	case EventQR:
		ok := s.store.UpdateGen(id, gen, func(e *entry) {
			e.state = StateAwaitingScan
			e.pendingCode = evt.Code
			e.resolve(nil)
		})
		if !ok {
			return
		}
		log.Info().Msg("received QR code")
		qr, err := RenderQR(evt.Code)
		if err != nil {
			log.Warn().Err(err).Msg("failed to render QR code")
		}
		s.publish(id, "qr", "", qr)

	case EventAuthenticated:
		if !s.store.UpdateGen(id, gen, func(e *entry) { e.pendingCode = "" }) {
			return
		}
		log.Info().Msg("session authenticated")
		s.publish(id, "authenticated", "")

	case EventReady:
		if !s.store.UpdateGen(id, gen, func(e *entry) {
			e.state = StateConnected
			e.pendingCode = ""
			e.reconnectAttempts = 0
			e.resolve(nil)
		}) {
			return
		}
		log.Info().Msg("whatsapp client is ready")
		s.publish(id, "ready", "")
		s.persist(id)

	case EventDisconnected:
		s.onConnectionLost(id, gen, evt.Reason, log)

	case EventAuthFailure:
		if !s.store.UpdateGen(id, gen, func(e *entry) {
			e.state = StateAuthFailed
			e.pendingCode = ""
			e.resolve(ErrAuthFailure)
		}) {
			return
		}
		log.Error().Str("reason", evt.Reason).Msg("authentication failed")
		s.publish(id, "auth_failure", evt.Reason)
		s.persist(id)
		s.goRecoverAuth(id)

	case EventError:
		if IsRecoverable(evt.Err) {
			reason := ""
			if evt.Err != nil {
				reason = evt.Err.Error()
			}
			s.onConnectionLost(id, gen, reason, log)
			return
		}
		log.Warn().Err(evt.Err).Msg("whatsapp client error")

	case EventMessage:
		if evt.Message == nil {
			return
		}
		snap, ok := s.store.Get(id)
		if !ok || snap.State != StateConnected {
			return
		}
		if _, cur, ok := s.store.Client(id); !ok || cur != gen {
			return
		}
		s.dispatch(id, *evt.Message)
	}
}

func (s *service) onConnectionLost(id string, gen uint64, reason string, log zerolog.Logger) {
	ignored := false
	ok := s.store.UpdateGen(id, gen, func(e *entry) {
		if e.state == StateTearingDown {
			ignored = true
			return
		}
		e.state = StateDisconnected
		e.resolve(ErrTransientDisconnect)
	})
	if !ok || ignored {
		return
	}
	log.Warn().Str("reason", reason).Msg("whatsapp client disconnected")
	s.publish(id, "disconnected", reason)
	s.persist(id)
	s.scheduleReconnect(id, reason)
}

func (s *service) dispatch(id string, msg InboundMessage) {
	s.handlersMu.RLock()
	handlers := append([]MessageHandler(nil), s.handlers...)
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		s.wg.Add(1)
		go func(h MessageHandler) {
			defer s.wg.Done()
			h(s.ctx, id, msg)
		}(h)
	}
}

// scheduleReconnect starts at most one reconnect loop per session.
func (s *service) scheduleReconnect(id, reason string) {
	if s.closed.Load() {
		return
	}
	started := false
	s.store.Update(id, func(e *entry) {
		if e.reconnecting {
			return
		}
		e.reconnecting = true
		started = true
	})
	if !started {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reconnect(id, reason)
	}()
}

func (s *service) reconnect(id, reason string) {
	log := s.log.With().Str("session", id).Logger()

	attempt, exhausted := 0, false
	ok := s.store.Update(id, func(e *entry) {
		if e.reconnectAttempts >= s.opts.MaxReconnectAttempts {
			exhausted = true
			e.reconnecting = false
			return
		}
		e.reconnectAttempts++
		attempt = e.reconnectAttempts
	})
	if !ok {
		return
	}

	if exhausted {
		metrics.Reconnects.WithLabelValues("exhausted").Inc()
		log.Warn().Int("max", s.opts.MaxReconnectAttempts).Msg("max reconnection attempts reached")
		if err := s.Teardown(s.ctx, id); err != nil {
			log.Warn().Err(err).Msg("teardown after exhausted reconnects reported errors")
		}
		return
	}

	log.Info().Int("attempt", attempt).Int("max", s.opts.MaxReconnectAttempts).Str("reason", reason).Msg("attempting to reconnect")
	metrics.Reconnects.WithLabelValues("attempt").Inc()

	unlock := s.lock(id)
	s.release(id)
	unlock()
	s.publish(id, "reconnecting", reason)

	if !s.sleep(s.opts.ReconnectBackoff) {
		return
	}

	if _, exists := s.store.Get(id); !exists {
		return
	}
	s.store.Update(id, func(e *entry) { e.reconnecting = false })

	if err := s.Initialize(s.ctx, id); err != nil {
		log.Error().Err(err).Int("attempt", attempt).Msg("failed to reconnect")
		return
	}
	metrics.Reconnects.WithLabelValues("success").Inc()
}

func (s *service) goRecoverAuth(id string) {
	if s.closed.Load() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.log.With().Str("session", id).Logger()

		if err := s.Teardown(s.ctx, id); err != nil {
			log.Warn().Err(err).Msg("teardown after auth failure reported errors")
		}
		if !s.sleep(s.opts.ReconnectBackoff) {
			return
		}
		if err := s.Initialize(s.ctx, id); err != nil {
			log.Error().Err(err).Msg("fresh initialize after auth failure failed")
		}
	}()
}

// sleep waits d or until the service closes.
func (s *service) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *service) publish(id, event, reason string, qr ...string) {
	snap, _ := s.store.Get(id)
	s.observe()
	if s.pub == nil {
		return
	}
	payload := SessionEvent{
		Event:             event,
		SessionID:         id,
		State:             snap.State,
		Connected:         snap.Connected,
		ReconnectAttempts: snap.ReconnectAttempts,
		Reason:            reason,
	}
	if len(qr) > 0 {
		payload.QR = qr[0]
	}
	s.pub.Publish(publisher.SessionChannel(id), payload)
}

func (s *service) observe() {
	counts := map[State]float64{
		StateInitializing: 0, StateAwaitingScan: 0, StateConnected: 0,
		StateDisconnected: 0, StateAuthFailed: 0, StateTearingDown: 0,
	}
	for _, snap := range s.store.List() {
		counts[snap.State]++
	}
	for state, n := range counts {
		metrics.SessionState.WithLabelValues(string(state)).Set(n)
	}
}

// persist mirrors the current state to the repository off the event path.
func (s *service) persist(id string) {
	if s.repo == nil {
		return
	}
	snap, exists := s.store.Get(id)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var err error
		if exists {
			err = s.repo.SaveState(ctx, snap)
		} else {
			err = s.repo.DeleteState(ctx, id)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("session", id).Msg("failed to persist session state")
		}
	}()
}

// Start registers the periodic health probe.
func (s *service) Start() error {
	if s.opts.HealthSchedule == "" {
		return nil
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.opts.HealthSchedule, func() { s.HealthCheck(s.ctx) }); err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", s.opts.HealthSchedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.opts.HealthSchedule).Msg("session health check scheduled")
	return nil
}

// Close stops background work and drops every client without logging out,
// so stored credentials survive a restart.
func (s *service) Close(ctx context.Context) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.cancel()

	for _, snap := range s.store.List() {
		unlock := s.lock(snap.SessionID)
		s.release(snap.SessionID)
		unlock()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("session manager shutdown timed out")
	}
}

// Package autoreply forwards inbound messages of enabled sessions to the
// conversational agent and sends its replies back.
package autoreply

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wasender/pkg/domains/agent"
	"github.com/wasender/pkg/domains/catalog"
	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/entities"
	"github.com/wasender/pkg/metrics"
)

// Messenger is the part of the session manager replies go through.
type Messenger interface {
	Send(ctx context.Context, sessionID, phone, text string) error
	Status(sessionID string) whatsapp.Snapshot
}

type Service interface {
	Enable(sessionID, topicID, agentID string)
	Disable(sessionID string)
	Status(sessionID string) (whatsapp.AutoReply, bool)
	OnInboundMessage(ctx context.Context, sessionID string, msg whatsapp.InboundMessage)
}

type service struct {
	store     *whatsapp.Store
	messenger Messenger
	catalog   catalog.Repository
	agent     agent.Client
	log       zerolog.Logger
}

func NewService(store *whatsapp.Store, m Messenger, c catalog.Repository, a agent.Client, log zerolog.Logger) Service {
	return &service{
		store:     store,
		messenger: m,
		catalog:   c,
		agent:     a,
		log:       log,
	}
}

func (s *service) Enable(sessionID, topicID, agentID string) {
	s.store.SetAutoReply(sessionID, whatsapp.AutoReply{TopicID: topicID, AgentID: agentID})
	s.log.Info().Str("session", sessionID).Str("topic", topicID).Str("agent", agentID).Msg("auto reply enabled")
}

func (s *service) Disable(sessionID string) {
	s.store.ClearAutoReply(sessionID)
	s.log.Info().Str("session", sessionID).Msg("auto reply disabled")
}

func (s *service) Status(sessionID string) (whatsapp.AutoReply, bool) {
	return s.store.AutoReply(sessionID)
}

// OnInboundMessage never returns an error; failures are logged and counted.
func (s *service) OnInboundMessage(ctx context.Context, sessionID string, msg whatsapp.InboundMessage) {
	binding, ok := s.store.AutoReply(sessionID)
	if !ok {
		return
	}
	if s.messenger.Status(sessionID).State != whatsapp.StateConnected {
		return
	}

	from := BareSender(msg.From)
	if from == "" || strings.TrimSpace(msg.Text) == "" {
		return
	}
	log := s.log.With().Str("session", sessionID).Str("from", from).Logger()

	meta := BuildMetadata(binding.TopicID, binding.AgentID, s.topic(ctx, binding.TopicID, log), s.persona(ctx, binding.AgentID, log))

	replies, err := s.agent.Respond(ctx, msg.Text, from, meta)
	if err != nil {
		metrics.AutoReplies.WithLabelValues("agent_error").Inc()
		log.Error().Err(err).Msg("agent request failed")
		return
	}

	for _, r := range replies {
		text := Render(r.Text, meta)
		if err := s.messenger.Send(ctx, sessionID, "+"+from, text); err != nil {
			metrics.AutoReplies.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Msg("failed to send auto reply")
			continue
		}
		metrics.AutoReplies.WithLabelValues("sent").Inc()
	}
	log.Debug().Int("replies", len(replies)).Msg("handled inbound message")
}

func (s *service) topic(ctx context.Context, id string, log zerolog.Logger) *entities.Topic {
	if id == "" {
		return nil
	}
	t, err := s.catalog.GetTopic(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("topic", id).Msg("topic lookup failed, using fallbacks")
		return nil
	}
	return &t
}

func (s *service) persona(ctx context.Context, id string, log zerolog.Logger) *entities.VirtualAgent {
	if id == "" {
		return nil
	}
	a, err := s.catalog.GetAgent(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("agent", id).Msg("agent lookup failed, using fallbacks")
		return nil
	}
	return &a
}

// BareSender strips the server and device parts of a chat address and
// keeps only digits.
func BareSender(from string) string {
	if i := strings.IndexByte(from, '@'); i >= 0 {
		from = from[:i]
	}
	if i := strings.IndexByte(from, ':'); i >= 0 {
		from = from[:i]
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, from)
}

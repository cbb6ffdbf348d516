package autoreply

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/wasender/pkg/constant"
	"github.com/wasender/pkg/domains/agent"
	"github.com/wasender/pkg/domains/whatsapp"
	"github.com/wasender/pkg/entities"
)

type sent struct {
	session, phone, text string
}

type fakeMessenger struct {
	mu     sync.Mutex
	state  whatsapp.State
	failOn string
	outbox []sent
}

func (m *fakeMessenger) Send(ctx context.Context, sessionID, phone, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && text == m.failOn {
		return whatsapp.ErrSendFailed
	}
	m.outbox = append(m.outbox, sent{sessionID, phone, text})
	return nil
}

func (m *fakeMessenger) Status(sessionID string) whatsapp.Snapshot {
	return whatsapp.Snapshot{SessionID: sessionID, State: m.state}
}

type fakeCatalog struct {
	topics map[string]entities.Topic
	agents map[string]entities.VirtualAgent
}

func (c *fakeCatalog) GetTopic(ctx context.Context, id string) (entities.Topic, error) {
	t, ok := c.topics[id]
	if !ok {
		return entities.Topic{}, errors.New("record not found")
	}
	return t, nil
}

func (c *fakeCatalog) GetAgent(ctx context.Context, id string) (entities.VirtualAgent, error) {
	a, ok := c.agents[id]
	if !ok {
		return entities.VirtualAgent{}, errors.New("record not found")
	}
	return a, nil
}

type fakeAgent struct {
	replies []string
	err     error
	sender  string
	meta    map[string]string
	calls   int
}

func (a *fakeAgent) Respond(ctx context.Context, message, sender string, metadata map[string]string) ([]agent.Reply, error) {
	a.calls++
	a.sender = sender
	a.meta = metadata
	if a.err != nil {
		return nil, a.err
	}
	out := make([]agent.Reply, 0, len(a.replies))
	for _, r := range a.replies {
		out = append(out, agent.Reply{RecipientID: sender, Text: r})
	}
	return out, nil
}

type AutoReplySuite struct {
	suite.Suite
	store     *whatsapp.Store
	messenger *fakeMessenger
	catalog   *fakeCatalog
	agent     *fakeAgent
	svc       Service
}

func TestAutoReplySuite(t *testing.T) {
	suite.Run(t, new(AutoReplySuite))
}

func (s *AutoReplySuite) SetupTest() {
	s.store = whatsapp.NewStore()
	s.messenger = &fakeMessenger{state: whatsapp.StateConnected}
	s.catalog = &fakeCatalog{
		topics: map[string]entities.Topic{
			"gala": {ID: "gala", EventName: "Gala Night", EventDate: "2026-11-01", CustomFields: map[string]string{"price": "120", "dressCode": "black tie"}},
		},
		agents: map[string]entities.VirtualAgent{
			"noa": {ID: "noa", Name: "Noa", CommunicationStyle: "warm"},
		},
	}
	s.agent = &fakeAgent{}
	s.svc = NewService(s.store, s.messenger, s.catalog, s.agent, zerolog.Nop())
}

func (s *AutoReplySuite) inbound(text string) {
	s.svc.OnInboundMessage(context.Background(), "s1", whatsapp.InboundMessage{From: "972501234567@s.whatsapp.net", Text: text})
}

func (s *AutoReplySuite) TestDisabledSessionIsIgnored() {
	s.inbound("hello")
	s.Equal(0, s.agent.calls)

	s.svc.Enable("s1", "gala", "noa")
	s.svc.Disable("s1")
	s.inbound("hello")
	s.Equal(0, s.agent.calls)
}

func (s *AutoReplySuite) TestNotConnectedIsIgnored() {
	s.svc.Enable("s1", "gala", "noa")
	s.messenger.state = whatsapp.StateDisconnected
	s.inbound("hello")
	s.Equal(0, s.agent.calls)
}

func (s *AutoReplySuite) TestRepliesAreRenderedAndSentInOrder() {
	s.svc.Enable("s1", "gala", "noa")
	s.agent.replies = []string{
		"{agent_name} here, {event_name} costs {price}",
		"Dress code: {dress_code}. Parking: {parking_info}. {unknown_token}",
	}

	s.inbound("details?")

	s.Equal("972501234567", s.agent.sender)
	s.Equal("gala", s.agent.meta["eventId"])
	s.Equal("noa", s.agent.meta["agentId"])
	s.Equal("warm", s.agent.meta["communication_style"])

	s.Require().Len(s.messenger.outbox, 2)
	s.Equal(sent{"s1", "+972501234567", "Noa here, Gala Night costs 120"}, s.messenger.outbox[0])
	s.Equal("Dress code: black tie. Parking: אין מידע על חניה. "+constant.NOT_SPECIFIED, s.messenger.outbox[1].text)
}

func (s *AutoReplySuite) TestLookupFailuresUseFallbacks() {
	s.svc.Enable("s1", "missing", "nobody")
	s.agent.replies = []string{"{agent_name}: {event_name} on {event_date}"}

	s.inbound("when?")

	s.Require().Len(s.messenger.outbox, 1)
	s.Equal(constant.DEFAULT_AGENT+": "+constant.DEFAULT_EVENT+" on "+constant.NOT_SPECIFIED, s.messenger.outbox[0].text)
}

func (s *AutoReplySuite) TestSendFailureDoesNotStopLaterReplies() {
	s.svc.Enable("s1", "gala", "noa")
	s.agent.replies = []string{"one", "two", "three"}
	s.messenger.failOn = "two"

	s.inbound("hi")

	s.Require().Len(s.messenger.outbox, 2)
	s.Equal("one", s.messenger.outbox[0].text)
	s.Equal("three", s.messenger.outbox[1].text)
}

func (s *AutoReplySuite) TestAgentErrorIsSwallowed() {
	s.svc.Enable("s1", "gala", "noa")
	s.agent.err = errors.New("connection refused")

	s.NotPanics(func() { s.inbound("hi") })
	s.Empty(s.messenger.outbox)
}

func (s *AutoReplySuite) TestStatus() {
	_, ok := s.svc.Status("s1")
	s.False(ok)

	s.svc.Enable("s1", "gala", "noa")
	ar, ok := s.svc.Status("s1")
	s.True(ok)
	s.Equal(whatsapp.AutoReply{TopicID: "gala", AgentID: "noa"}, ar)
}

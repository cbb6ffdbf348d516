package publisher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type HubSuite struct {
	suite.Suite
	hub *Hub
}

func (s *HubSuite) SetupTest() {
	s.hub = NewHub()
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) TestPublishWithoutSubscribersIsDropped() {
	s.NotPanics(func() { s.hub.Publish("nobody", map[string]int{"a": 1}) })
	s.Equal(0, s.hub.Subscribers("nobody"))
}

func (s *HubSuite) TestPublishReachesOnlyMatchingChannel() {
	a, unsubA := s.hub.Subscribe("a", 4)
	defer unsubA()
	b, unsubB := s.hub.Subscribe("b", 4)
	defer unsubB()

	s.hub.Publish("a", "hello")

	select {
	case msg := <-a:
		s.Equal("a", msg.Channel)
		s.Equal("hello", msg.Payload)
	case <-time.After(time.Second):
		s.Fail("subscriber on a did not receive")
	}

	select {
	case <-b:
		s.Fail("subscriber on b must not receive")
	default:
	}
}

func (s *HubSuite) TestFanOutToEverySubscriber() {
	first, unsub1 := s.hub.Subscribe("c", 1)
	defer unsub1()
	second, unsub2 := s.hub.Subscribe("c", 1)
	defer unsub2()

	s.Equal(2, s.hub.Subscribers("c"))
	s.hub.Publish("c", 1)

	s.Equal(1, (<-first).Payload)
	s.Equal(1, (<-second).Payload)
}

func (s *HubSuite) TestFullBufferDropsInsteadOfBlocking() {
	ch, unsub := s.hub.Subscribe("slow", 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		s.hub.Publish("slow", 1)
		s.hub.Publish("slow", 2)
		s.hub.Publish("slow", 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("publish blocked on a slow subscriber")
	}
	s.Equal(1, (<-ch).Payload)
}

func (s *HubSuite) TestUnsubscribeClosesAndIsIdempotent() {
	ch, unsub := s.hub.Subscribe("x", 1)
	unsub()
	unsub()

	_, ok := <-ch
	s.False(ok)
	s.Equal(0, s.hub.Subscribers("x"))
	s.NotPanics(func() { s.hub.Publish("x", 1) })
}

func (s *HubSuite) TestChannelKeys() {
	s.Equal("whatsapp:status:s1", SessionChannel("s1"))
	s.Equal("background-sender:status:n1", SenderChannel("n1"))
}

func TestServeWSStreamsPublishedMessages(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("channel"), zerolog.Nop())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?channel=room"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("room") == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish("room", map[string]any{"sentCount": 2})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Channel string         `json:"channel"`
		Payload map[string]int `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "room", msg.Channel)
	require.Equal(t, 2, msg.Payload["sentCount"])
}

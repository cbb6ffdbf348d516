package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasender/pkg/publisher"
)

type fakeClient struct {
	mu sync.Mutex

	emit           func(Event)
	connected      bool
	loggedIn       bool
	restoreOnReset bool

	logouts     int
	disconnects int
	closes      int
	resets      int

	logoutErr  error
	closePanic bool
	resolveErr error
	sendErr    error
	sent       []string
}

func (c *fakeClient) Connect(ctx context.Context) error { return nil }

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	c.loggedIn = false
	return c.logoutErr
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closePanic {
		panic("store already closed")
	}
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

func (c *fakeClient) ResetConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.connected = c.restoreOnReset
	return nil
}

func (c *fakeClient) ResolveRecipient(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolveErr != nil {
		return "", c.resolveErr
	}
	return phone + "@s.whatsapp.net", nil
}

func (c *fakeClient) SendText(ctx context.Context, to, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, to+"|"+text)
	return fmt.Sprintf("msg-%d", len(c.sent)), nil
}

func (c *fakeClient) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

func (c *fakeClient) counts() (logouts, disconnects, closes, resets int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts, c.disconnects, c.closes, c.resets
}

// connectingClient runs the factory's handshake behaviour on Connect.
type connectingClient struct {
	*fakeClient
	factory *fakeFactory
}

func (c *connectingClient) Connect(ctx context.Context) error {
	return c.factory.handshake(c.fakeClient)
}

type fakeFactory struct {
	mu sync.Mutex

	paired    bool
	silent    bool
	gate      chan struct{}
	failAfter int
	clients   []*fakeClient
}

func (f *fakeFactory) NewClient(ctx context.Context, sessionID, dir string, emit func(Event)) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.clients) >= f.failAfter {
		return nil, fmt.Errorf("device store locked")
	}
	c := &fakeClient{emit: emit}
	f.clients = append(f.clients, c)
	return &connectingClient{fakeClient: c, factory: f}, nil
}

func (f *fakeFactory) handshake(c *fakeClient) error {
	f.mu.Lock()
	paired, silent, gate := f.paired, f.silent, f.gate
	n := len(f.clients)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if silent {
		return nil
	}
	c.mu.Lock()
	c.connected = true
	c.loggedIn = paired
	c.mu.Unlock()

	if paired {
		c.emit(Event{Kind: EventReady})
		return nil
	}
	c.emit(Event{Kind: EventQR, Code: fmt.Sprintf("2@code-%d", n)})
	return nil
}

func (f *fakeFactory) set(fn func(f *fakeFactory)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []SessionEvent
}

var _ publisher.Publisher = (*recordingPublisher)(nil)

func (p *recordingPublisher) Publish(channel string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if evt, ok := payload.(SessionEvent); ok {
		p.events = append(p.events, evt)
	}
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

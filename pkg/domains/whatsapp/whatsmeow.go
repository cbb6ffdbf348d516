package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

const storeFile = "store.db"

var errQRTimeout = errors.New("qr code was not scanned in time")

// WhatsmeowFactory builds clients backed by a sqlite device store inside
// each session's credential directory.
type WhatsmeowFactory struct {
	log zerolog.Logger
}

func NewWhatsmeowFactory(log zerolog.Logger) *WhatsmeowFactory {
	return &WhatsmeowFactory{log: log}
}

func (f *WhatsmeowFactory) NewClient(ctx context.Context, sessionID, dir string, emit func(Event)) (Client, error) {
	log := f.log.With().Str("session", sessionID).Logger()
	waLogger := waLog.Zerolog(log)

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", filepath.Join(dir, storeFile))
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLogger.Sub("Database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLogger.Sub("Client"))
	// Reconnects are driven by the session manager.
	cli.EnableAutoReconnect = false

	c := &waClient{cli: cli, container: container, emit: emit, log: log}
	cli.AddEventHandler(c.onEvent)
	return c, nil
}

type waClient struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	emit      func(Event)
	log       zerolog.Logger
}

func (c *waClient) Connect(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		// The QR channel has to be requested before connecting.
		qrChan, err := c.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		go c.pumpQR(qrChan)
	}
	return c.cli.Connect()
}

func (c *waClient) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			c.emit(Event{Kind: EventQR, Code: item.Code})
		case "success":
			c.log.Debug().Msg("QR code scanned")
		case "timeout":
			c.emit(Event{Kind: EventDisconnected, Reason: errQRTimeout.Error()})
		case "error":
			c.emit(Event{Kind: EventError, Err: item.Error})
		default:
			c.log.Debug().Str("qr_event", item.Event).Msg("unhandled QR event")
		}
	}
}

func (c *waClient) onEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.emit(Event{Kind: EventReady})
	case *events.PairSuccess:
		c.emit(Event{Kind: EventAuthenticated})
	case *events.LoggedOut:
		c.emit(Event{Kind: EventAuthFailure, Reason: v.Reason.String()})
	case *events.TemporaryBan:
		c.emit(Event{Kind: EventAuthFailure, Reason: v.String()})
	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			c.emit(Event{Kind: EventAuthFailure, Reason: v.Reason.String()})
			return
		}
		c.emit(Event{Kind: EventDisconnected, Reason: v.Reason.String()})
	case *events.Disconnected:
		c.emit(Event{Kind: EventDisconnected, Reason: "connection lost"})
	case *events.StreamReplaced:
		c.emit(Event{Kind: EventDisconnected, Reason: "stream replaced"})
	case *events.StreamError:
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("stream error: %s", v.Code)})
	case *events.KeepAliveTimeout:
		c.log.Warn().Int("error_count", v.ErrorCount).Msg("keepalive timeout")
	case *events.Message:
		if msg, ok := c.inbound(v); ok {
			c.emit(Event{Kind: EventMessage, Message: msg})
		}
	}
}

func (c *waClient) inbound(v *events.Message) (*InboundMessage, bool) {
	if v.Info.IsFromMe || v.Info.IsGroup {
		return nil, false
	}
	text := v.Message.GetConversation()
	if text == "" {
		text = v.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return nil, false
	}

	sender := v.Info.Sender.ToNonAD()
	if sender.Server == waTypes.HiddenUserServer {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pn, err := c.cli.Store.LIDs.GetPNForLID(ctx, sender)
		cancel()
		if err != nil || pn.IsEmpty() {
			c.log.Debug().Err(err).Str("lid", sender.String()).Msg("no phone number for sender")
			return nil, false
		}
		sender = pn
	}

	return &InboundMessage{
		ID:        v.Info.ID,
		From:      sender.User,
		PushName:  v.Info.PushName,
		Text:      text,
		Timestamp: v.Info.Timestamp,
	}, true
}

func (c *waClient) Disconnect() { c.cli.Disconnect() }

func (c *waClient) Logout(ctx context.Context) error { return c.cli.Logout(ctx) }

func (c *waClient) Close() error { return c.container.Close() }

func (c *waClient) IsConnected() bool { return c.cli.IsConnected() }

func (c *waClient) IsLoggedIn() bool { return c.cli.IsLoggedIn() }

func (c *waClient) ResetConnection() error {
	c.cli.Disconnect()
	return c.cli.Connect()
}

func (c *waClient) ResolveRecipient(ctx context.Context, phone string) (string, error) {
	resp, err := c.cli.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return "", err
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return "", ErrRecipientNotFound
	}
	return resp[0].JID.String(), nil
}

func (c *waClient) SendText(ctx context.Context, to, text string) (string, error) {
	jid, err := waTypes.ParseJID(to)
	if err != nil {
		return "", err
	}
	resp, err := c.cli.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

package wa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cskr/pubsub"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
)

// Lifecycle events published on the bus. The status reporter subscribes
// to these instead of hanging handlers off the whatsmeow client, so the
// rest of the system never touches the transport library.
const TopicLifecycle = "lifecycle"

type Connected struct{}
type Disconnected struct{}
type LoggedOut struct{}
type PairingRequested struct {
	Artifact string // QR payload or numeric pairing code
}

var ErrNotPaired = errors.New("device not paired")

// Manager owns the long-lived WhatsApp session and exposes the narrow
// send/pair/connect surface the dispatcher needs.
type Manager struct {
	Container *sqlstore.Container
	Client    *whatsmeow.Client

	bus     *pubsub.PubSub
	limiter *rate.Limiter
	httpc   *http.Client
	log     zerolog.Logger

	pairingMu     sync.Mutex
	pairingActive bool
}

// NewManager opens the whatsmeow session container on the given DSN and
// prepares (but does not connect) the client. ratePerMin caps outbound
// transport calls as a last-line guard against bursts.
func NewManager(ctx context.Context, dsn string, logger zerolog.Logger, ratePerMin float64) (*Manager, error) {
	wlog := waLog.Zerolog(logger.With().Str("comp", "whatsmeow").Logger())
	container, err := sqlstore.New(ctx, "sqlite3", dsn, wlog)
	if err != nil {
		return nil, err
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, err
	}
	client := whatsmeow.NewClient(device, wlog)

	if ratePerMin <= 0 {
		ratePerMin = 30
	}
	m := &Manager{
		Container: container,
		Client:    client,
		bus:       pubsub.New(16),
		limiter:   rate.NewLimiter(rate.Limit(ratePerMin/60.0), 1),
		httpc:     &http.Client{Timeout: 60 * time.Second},
		log:       logger.With().Str("comp", "wa").Logger(),
	}
	client.AddEventHandler(m.handleEvent)
	return m, nil
}

func (m *Manager) handleEvent(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		m.log.Info().Msg("session connected")
		m.bus.Pub(Connected{}, TopicLifecycle)
	case *events.Disconnected:
		m.log.Warn().Msg("session disconnected")
		m.bus.Pub(Disconnected{}, TopicLifecycle)
	case *events.LoggedOut:
		m.log.Warn().Msg("session logged out")
		m.bus.Pub(LoggedOut{}, TopicLifecycle)
	case *events.StreamReplaced:
		m.log.Warn().Msg("session replaced by another device")
		m.bus.Pub(LoggedOut{}, TopicLifecycle)
	}
}

// Events returns a subscription to lifecycle events. Release it with
// Unsubscribe; the channel is closed afterwards.
func (m *Manager) Events() chan interface{} {
	return m.bus.Sub(TopicLifecycle)
}

func (m *Manager) Unsubscribe(ch chan interface{}) {
	m.bus.Unsub(ch, TopicLifecycle)
}

// Paired reports whether the device has stored credentials.
func (m *Manager) Paired() bool {
	return m.Client.Store != nil && m.Client.Store.ID != nil
}

func (m *Manager) IsConnected() bool {
	return m.Client.IsConnected()
}

// Connect establishes the session for an already-paired device.
func (m *Manager) Connect() error {
	if !m.Paired() {
		return ErrNotPaired
	}
	m.log.Info().Msg("connecting")
	return m.Client.Connect()
}

// Logout unlinks the device and drops the session.
func (m *Manager) Logout(ctx context.Context) error {
	return m.Client.Logout(ctx)
}

// Close disconnects and releases the session container.
func (m *Manager) Close() {
	m.Client.Disconnect()
}

// StartPairing begins QR pairing and returns the first code as a PNG
// plus its raw payload. Connect is started at most once per pairing
// attempt; the QR websocket uses a background context so it survives
// the HTTP handler that triggered it.
func (m *Manager) StartPairing(ctx context.Context) ([]byte, string, error) {
	if m.Paired() {
		return nil, "", fmt.Errorf("already paired")
	}

	qrChan, _ := m.Client.GetQRChannel(context.Background())

	m.pairingMu.Lock()
	if !m.pairingActive {
		m.log.Info().Msg("pair:qr: start connect")
		m.pairingActive = true
		go func() {
			if err := m.Client.Connect(); err != nil {
				m.log.Error().Err(err).Msg("pair:qr: connect")
			}
		}()
	}
	m.pairingMu.Unlock()

	for {
		select {
		case item, ok := <-qrChan:
			if !ok {
				return nil, "", fmt.Errorf("qr channel closed")
			}
			if item.Event == "code" && item.Code != "" {
				png, err := qrcode.Encode(item.Code, qrcode.Medium, 256)
				if err != nil {
					return nil, "", err
				}
				m.log.Info().Int("len", len(item.Code)).Msg("pair:qr: got code")
				m.bus.Pub(PairingRequested{Artifact: item.Code}, TopicLifecycle)
				return png, item.Code, nil
			}
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
}

// RequestPairingCode returns a number-based pairing code for msisdn.
func (m *Manager) RequestPairingCode(ctx context.Context, msisdn string) (string, error) {
	if m.Paired() {
		return "", fmt.Errorf("already paired")
	}
	if msisdn == "" {
		return "", fmt.Errorf("msisdn required")
	}

	qrChan, _ := m.Client.GetQRChannel(context.Background())

	m.pairingMu.Lock()
	if !m.pairingActive {
		m.log.Info().Str("msisdn", msisdn).Msg("pair:number: start connect")
		m.pairingActive = true
		go func() {
			if err := m.Client.Connect(); err != nil {
				m.log.Error().Err(err).Msg("pair:number: connect")
			}
		}()
	}
	m.pairingMu.Unlock()

	// Wait for the first event or a short delay so the socket is ready
	// before PairPhone.
	select {
	case <-qrChan:
	case <-time.After(1 * time.Second):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	code, err := m.Client.PairPhone(ctx, msisdn, false, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		m.log.Error().Err(err).Msg("pair:number: PairPhone")
		return "", err
	}
	m.log.Info().Int("len", len(code)).Msg("pair:number: got code")
	m.bus.Pub(PairingRequested{Artifact: code}, TopicLifecycle)
	return code, nil
}

// SendText delivers a plain text message to a normalized numeric
// destination; the JID suffix is appended here.
func (m *Manager) SendText(ctx context.Context, destination, body string) error {
	if !m.Paired() {
		return ErrNotPaired
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	jid := types.NewJID(destination, types.DefaultUserServer)
	msg := &waE2E.Message{Conversation: proto.String(body)}
	_, err := m.Client.SendMessage(ctx, jid, msg)
	return err
}

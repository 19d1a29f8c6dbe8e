package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/model"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/storage"
)

// Connector is the slice of the transport the loop needs. Failures are
// returned as errors, never panics; the loop converts them to terminal
// row states.
type Connector interface {
	SendText(ctx context.Context, destination, body string) error
	SendMedia(ctx context.Context, destination, body, mediaRef string) error
}

// Idle sleeps per gate, and the bounds of the pre-send typing
// simulation delay.
const (
	sleepDisabled     = 10 * time.Second
	sleepOutOfWindow  = 60 * time.Second
	sleepDisconnected = 5 * time.Second
	sleepEmptyQueue   = 5 * time.Second
	typingDelayMin    = 1 * time.Second
	typingDelayMax    = 3 * time.Second

	// refresh the cached config every Nth cycle, bounding staleness
	configRefreshEvery = 5
)

// Loop is the dispatcher: one long-lived sequential flow that claims
// pending rows and delivers them, pacing sends with a randomized
// cooldown so outbound traffic does not look machine-generated.
type Loop struct {
	store         *storage.Store
	conn          Connector
	log           zerolog.Logger
	instanceID    string
	countryPrefix string
	sendTimeout   time.Duration

	// injectable for tests; real time/rand in production
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	randIntn func(n int) int

	cycles  int
	cfg     model.DispatchConfig
	haveCfg bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(store *storage.Store, conn Connector, instanceID, countryPrefix string, sendTimeout time.Duration, logger zerolog.Logger) *Loop {
	if sendTimeout <= 0 {
		sendTimeout = 20 * time.Second
	}
	return &Loop{
		store:         store,
		conn:          conn,
		log:           logger.With().Str("comp", "dispatch").Logger(),
		instanceID:    instanceID,
		countryPrefix: countryPrefix,
		sendTimeout:   sendTimeout,
		now:           time.Now,
		sleep:         sleepCtx,
		randIntn:      rand.Intn,
		done:          make(chan struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the loop goroutine. Returns false if already running.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	go l.run(ctx)
	l.log.Info().Str("instance", l.instanceID).Msg("dispatch loop started")
	return true
}

// Stop cancels the loop and waits for it to exit. A message already in
// its sending step is finished first; no new cycle begins afterwards.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return false
	}
	l.cancel()
	<-l.done
	l.running = false
	l.log.Info().Msg("dispatch loop stopped")
	return true
}

func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d := l.cycle(ctx)
		if err := l.sleep(ctx, d); err != nil {
			return
		}
	}
}

// cycle runs one pass of the state machine and returns how long to
// sleep before the next pass. Infra read errors keep the loop idle and
// are retried next cycle; nothing here may terminate the loop.
func (l *Loop) cycle(ctx context.Context) time.Duration {
	if l.cycles%configRefreshEvery == 0 || !l.haveCfg {
		cfg, err := l.store.GetConfig()
		if err != nil {
			l.log.Warn().Err(err).Msg("config refresh failed, keeping cached")
			if !l.haveCfg {
				l.cycles++
				return sleepDisabled
			}
		} else {
			l.cfg = cfg
			l.haveCfg = true
		}
	}
	l.cycles++
	cfg := l.cfg

	if !cfg.Enabled {
		return sleepDisabled
	}

	startMin, err1 := ParseClock(cfg.WindowStart)
	endMin, err2 := ParseClock(cfg.WindowEnd)
	if err1 != nil || err2 != nil {
		// window is validated on write; an unreadable value here means a
		// raw DB edit. Stay idle rather than widening the window to 24h.
		l.log.Warn().Str("start", cfg.WindowStart).Str("end", cfg.WindowEnd).Msg("unparseable window, staying idle")
		return sleepOutOfWindow
	}
	if !inWindow(l.now(), startMin, endMin) {
		return sleepOutOfWindow
	}

	st, err := l.store.GetStatus()
	if err != nil {
		l.log.Warn().Err(err).Msg("status read failed")
		return sleepDisconnected
	}
	if st.State != model.StateConnected {
		return sleepDisconnected
	}

	msg, err := l.store.ClaimNext(l.instanceID)
	if err != nil {
		l.log.Warn().Err(err).Msg("claim failed")
		return sleepEmptyQueue
	}
	if msg == nil {
		return sleepEmptyQueue
	}

	l.process(msg)
	return l.cooldown(cfg)
}

// process delivers one claimed message and marks it terminal. It runs
// on a detached context so a pending Stop never strands a claimed row;
// the send itself is bounded by sendTimeout.
func (l *Loop) process(msg *model.QueuedMessage) {
	dest, err := Normalize(msg.Destination, l.countryPrefix)
	if err != nil {
		applied, merr := l.store.MarkFailed(msg.ID, err.Error())
		l.logMark(msg.ID, model.MessageFailed, applied, merr)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.sendTimeout+typingDelayMax)
	defer cancel()

	// typing simulation before the actual send
	_ = l.sleep(ctx, typingDelayMin+time.Duration(l.randIntn(int(typingDelayMax-typingDelayMin)+1)))

	if msg.MediaRef != "" {
		err = l.conn.SendMedia(ctx, dest, msg.Body, msg.MediaRef)
	} else {
		err = l.conn.SendText(ctx, dest, msg.Body)
	}
	if err != nil {
		applied, merr := l.store.MarkFailed(msg.ID, err.Error())
		l.logMark(msg.ID, model.MessageFailed, applied, merr)
		l.log.Warn().Int64("id", msg.ID).Str("dest", dest).Err(err).Msg("send failed")
		return
	}
	applied, merr := l.store.MarkSent(msg.ID)
	l.logMark(msg.ID, model.MessageSent, applied, merr)
	l.log.Info().Int64("id", msg.ID).Str("dest", dest).Msg("sent")
}

func (l *Loop) logMark(id int64, status string, applied bool, err error) {
	if err != nil {
		l.log.Error().Int64("id", id).Str("status", status).Err(err).Msg("mark failed")
		return
	}
	if !applied {
		l.log.Warn().Int64("id", id).Str("status", status).Msg("row already terminal, mark skipped")
	}
}

// cooldown draws a uniform delay in [min, max] seconds. Swaps a bad
// min > max pair so the invariant holds even after a bad config write.
func (l *Loop) cooldown(cfg model.DispatchConfig) time.Duration {
	min, max := cfg.MinDelaySec, cfg.MaxDelaySec
	if min < 0 {
		min = 0
	}
	if max < 0 {
		max = 0
	}
	if max < min {
		min, max = max, min
	}
	return time.Duration(min+l.randIntn(max-min+1)) * time.Second
}

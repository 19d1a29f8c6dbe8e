package status

import (
	"github.com/rs/zerolog"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/model"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/storage"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/wa"
)

// EventSource is the slice of the transport connector the reporter
// consumes: a lifecycle-event subscription.
type EventSource interface {
	Events() chan interface{}
	Unsubscribe(ch chan interface{})
}

// Reporter persists connection-lifecycle events into the singleton
// status row. It is the only writer of that row; the dispatch loop and
// the status endpoint only read it.
type Reporter struct {
	store  *storage.Store
	source EventSource
	log    zerolog.Logger

	events chan interface{}
	done   chan struct{}
}

func New(store *storage.Store, source EventSource, logger zerolog.Logger) *Reporter {
	return &Reporter{
		store:  store,
		source: source,
		log:    logger.With().Str("comp", "status").Logger(),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the connector and consumes events until Stop.
func (r *Reporter) Start() {
	r.events = r.source.Events()
	go r.run()
}

// Stop unsubscribes; the event channel closes and the goroutine exits.
func (r *Reporter) Stop() {
	r.source.Unsubscribe(r.events)
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)
	for evt := range r.events {
		var state, artifact string
		switch e := evt.(type) {
		case wa.Connected:
			state = model.StateConnected
		case wa.Disconnected:
			state = model.StateDisconnected
		case wa.LoggedOut:
			state = model.StateDisconnected
		case wa.PairingRequested:
			state = model.StateAwaitingPairing
			artifact = e.Artifact
		default:
			continue
		}
		if err := r.store.UpdateStatus(state, artifact); err != nil {
			r.log.Error().Err(err).Str("state", state).Msg("persist status")
			continue
		}
		r.log.Info().Str("state", state).Msg("status updated")
	}
}

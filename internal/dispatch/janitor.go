package dispatch

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/storage"
)

// Janitor periodically resets claimed rows older than a staleness
// threshold back to pending. A claimed-but-unmarked row only exists
// after a hard crash between claim and mark; this is the reconciliation
// safeguard for that case.
type Janitor struct {
	store      *storage.Store
	log        zerolog.Logger
	staleAfter time.Duration
	cron       *cron.Cron
}

func NewJanitor(store *storage.Store, every, staleAfter time.Duration, logger zerolog.Logger) (*Janitor, error) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	j := &Janitor{
		store:      store,
		log:        logger.With().Str("comp", "janitor").Logger(),
		staleAfter: staleAfter,
		cron:       cron.New(),
	}
	if _, err := j.cron.AddFunc(fmt.Sprintf("@every %s", every), j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

func (j *Janitor) Stop() { <-j.cron.Stop().Done() }

func (j *Janitor) sweep() {
	n, err := j.store.ResetStaleClaims(j.staleAfter)
	if err != nil {
		j.log.Error().Err(err).Msg("stale claim sweep failed")
		return
	}
	if n > 0 {
		j.log.Warn().Int64("reset", n).Dur("stale_after", j.staleAfter).Msg("reset stale claimed rows")
	}
}

package status

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/model"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/storage"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/wa"
)

type fakeSource struct {
	ch chan interface{}
}

func (f *fakeSource) Events() chan interface{}        { return f.ch }
func (f *fakeSource) Unsubscribe(ch chan interface{}) { close(ch) }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open("file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// waitForState polls the status row until it matches or the timeout
// passes; the reporter consumes events on its own goroutine.
func waitForState(t *testing.T, s *storage.Store, state string) model.ConnectionStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := s.GetStatus()
		require.NoError(t, err)
		if st.State == state {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never reached %q (got %q)", state, st.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReporter_PersistsLifecycleEvents(t *testing.T) {
	s := openTestStore(t)
	src := &fakeSource{ch: make(chan interface{}, 4)}
	r := New(s, src, zerolog.Nop())
	r.Start()

	src.ch <- wa.PairingRequested{Artifact: "2@qr-payload"}
	st := waitForState(t, s, model.StateAwaitingPairing)
	require.Equal(t, "2@qr-payload", st.PairingArtifact)

	src.ch <- wa.Connected{}
	st = waitForState(t, s, model.StateConnected)
	require.Empty(t, st.PairingArtifact)

	src.ch <- wa.Disconnected{}
	waitForState(t, s, model.StateDisconnected)

	src.ch <- wa.Connected{}
	waitForState(t, s, model.StateConnected)
	src.ch <- wa.LoggedOut{}
	waitForState(t, s, model.StateDisconnected)

	r.Stop()
}

func TestReporter_StopClosesCleanly(t *testing.T) {
	s := openTestStore(t)
	src := &fakeSource{ch: make(chan interface{}, 1)}
	r := New(s, src, zerolog.Nop())
	r.Start()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

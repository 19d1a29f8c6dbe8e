package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/model"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/storage"
)

type fakeTransport struct {
	connectErr error
	connected  bool
	code       string
}

func (f *fakeTransport) Connect() error                   { return f.connectErr }
func (f *fakeTransport) IsConnected() bool                { return f.connected }
func (f *fakeTransport) Logout(ctx context.Context) error { return nil }
func (f *fakeTransport) StartPairing(ctx context.Context) ([]byte, string, error) {
	return []byte("png-bytes"), "2@qr", nil
}
func (f *fakeTransport) RequestPairingCode(ctx context.Context, msisdn string) (string, error) {
	return f.code, nil
}

func newTestAPI(t *testing.T) (*storage.Store, http.Handler) {
	t.Helper()
	s, err := storage.Open("file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, NewRouter(s, &fakeTransport{code: "ABCD-1234"}, "55")
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEnqueue_NormalizesDestination(t *testing.T) {
	s, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/messages", map[string]any{
		"destination": "(11) 98888-7777",
		"body":        "Sua ordem de serviço foi agendada",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, model.MessagePending, resp.Status)

	rows, err := s.ListMessages(model.MessagePending, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "5511988887777", rows[0].Destination)
}

func TestEnqueue_Rejections(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/messages", map[string]any{
		"destination": "---", "body": "hi",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/messages", map[string]any{
		"destination": "11988887777",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfig_UpdateAndValidation(t *testing.T) {
	s, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPut, "/api/config", map[string]any{
		"enabled": true, "min_delay_sec": 15, "max_delay_sec": 60,
		"window_start": "22:00", "window_end": "06:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	cfg, err := s.GetConfig()
	require.NoError(t, err)
	require.True(t, cfg.Enabled)
	require.Equal(t, 15, cfg.MinDelaySec)
	require.Equal(t, "22:00", cfg.WindowStart)

	rec = doJSON(t, h, http.MethodPut, "/api/config", map[string]any{
		"min_delay_sec": 90, "max_delay_sec": 30,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/config", map[string]any{
		"window_start": "25:99",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/config", map[string]any{
		"min_delay_sec": -1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// rejected writes did not stick
	cfg, err = s.GetConfig()
	require.NoError(t, err)
	require.Equal(t, 15, cfg.MinDelaySec)
	require.Equal(t, 60, cfg.MaxDelaySec)
}

func TestStatusEndpoint(t *testing.T) {
	s, h := newTestAPI(t)
	require.NoError(t, s.UpdateStatus(model.StateAwaitingPairing, "2@qr"))

	rec := doJSON(t, h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st struct {
		State           string `json:"state"`
		PairingArtifact string `json:"pairing_artifact"`
		Connected       bool   `json:"connected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, model.StateAwaitingPairing, st.State)
	require.Equal(t, "2@qr", st.PairingArtifact)
	require.False(t, st.Connected)
}

// The persisted row can lag the socket; the status endpoint reports the
// transport's view next to it so operators can spot the gap.
func TestStatusEndpoint_ReportsLiveConnection(t *testing.T) {
	s, err := storage.Open("file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	h := NewRouter(s, &fakeTransport{connected: true}, "55")

	rec := doJSON(t, h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st struct {
		State     string `json:"state"`
		Connected bool   `json:"connected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, model.StateDisconnected, st.State)
	require.True(t, st.Connected)
}

func TestPairByNumber(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/pair/code", map[string]any{
		"msisdn": "(11) 98888-7777",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ABCD-1234", resp["code"])

	rec = doJSON(t, h, http.MethodPost, "/api/pair/code", map[string]any{"msisdn": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessages_UnknownStatusRejected(t *testing.T) {
	_, h := newTestAPI(t)
	rec := doJSON(t, h, http.MethodGet, "/api/messages?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

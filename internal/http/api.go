package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/dispatch"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/model"
	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/storage"
)

// Transport is the slice of the connector the admin surface drives.
type Transport interface {
	Connect() error
	IsConnected() bool
	Logout(ctx context.Context) error
	StartPairing(ctx context.Context) (png []byte, code string, err error)
	RequestPairingCode(ctx context.Context, msisdn string) (string, error)
}

type API struct {
	Store         *storage.Store
	Conn          Transport
	CountryPrefix string
	Router        *chi.Mux
}

func NewRouter(store *storage.Store, conn Transport, countryPrefix string) *chi.Mux {
	api := &API{
		Store:         store,
		Conn:          conn,
		CountryPrefix: countryPrefix,
		Router:        chi.NewRouter(),
	}
	r := api.Router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(cors)

	api.routes()
	return r
}

func (a *API) routes() {
	a.Router.Get("/api/health", a.handleHealth)
	a.Router.Get("/api/status", a.handleStatus)
	a.Router.Get("/api/stats", a.handleStats)

	// Pairing & session endpoints
	a.Router.Get("/api/pair/qr", a.handlePairQR)
	a.Router.Post("/api/pair/code", a.handlePairByNumber)
	a.Router.Post("/api/connect", a.handleConnect)
	a.Router.Post("/api/logout", a.handleLogout)

	// Dispatch configuration (delay bounds, window, enabled flag)
	a.Router.Get("/api/config", a.handleGetConfig)
	a.Router.Put("/api/config", a.handleUpdateConfig)

	// Outbox
	a.Router.Post("/api/messages", a.handleEnqueue)
	a.Router.Get("/api/messages", a.handleListMessages)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.Store.GetStatus()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":            st.State,
		"pairing_artifact": st.PairingArtifact,
		"updated_at":       st.UpdatedAt,
		"connected":        a.Conn.IsConnected(),
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	total, sent, failed, err := a.Store.StatsToday()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"sent":   sent,
		"failed": failed,
	})
}

func (a *API) handlePairQR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	png, _, err := a.Conn.StartPairing(ctx)
	if err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type pairByNumberReq struct {
	Msisdn string `json:"msisdn"`
}

func (a *API) handlePairByNumber(w http.ResponseWriter, r *http.Request) {
	var req pairByNumberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	msisdn, err := dispatch.Normalize(req.Msisdn, a.CountryPrefix)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "msisdn required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	code, err := a.Conn.RequestPairingCode(ctx, msisdn)
	if err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code})
}

func (a *API) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := a.Conn.Connect(); err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Conn.Logout(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.Store.GetConfig()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type updateConfigReq struct {
	MinDelaySec *int    `json:"min_delay_sec"`
	MaxDelaySec *int    `json:"max_delay_sec"`
	WindowStart *string `json:"window_start"`
	WindowEnd   *string `json:"window_end"`
	Enabled     *bool   `json:"enabled"`
	DisplayName *string `json:"display_name"`
}

func (a *API) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cfg, err := a.Store.GetConfig()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.MinDelaySec != nil {
		cfg.MinDelaySec = *req.MinDelaySec
	}
	if req.MaxDelaySec != nil {
		cfg.MaxDelaySec = *req.MaxDelaySec
	}
	if req.WindowStart != nil {
		cfg.WindowStart = *req.WindowStart
	}
	if req.WindowEnd != nil {
		cfg.WindowEnd = *req.WindowEnd
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.DisplayName != nil {
		cfg.DisplayName = *req.DisplayName
	}

	if cfg.MinDelaySec < 0 || cfg.MaxDelaySec < 0 {
		writeErr(w, http.StatusBadRequest, "delays must be non-negative")
		return
	}
	if cfg.MinDelaySec > cfg.MaxDelaySec {
		writeErr(w, http.StatusBadRequest, "min_delay_sec must be <= max_delay_sec")
		return
	}
	if _, err := dispatch.ParseClock(cfg.WindowStart); err != nil {
		writeErr(w, http.StatusBadRequest, "window_start must be HH:MM")
		return
	}
	if _, err := dispatch.ParseClock(cfg.WindowEnd); err != nil {
		writeErr(w, http.StatusBadRequest, "window_end must be HH:MM")
		return
	}

	if err := a.Store.UpdateConfig(cfg); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	cfg, err = a.Store.GetConfig()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type enqueueReq struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
	MediaRef    string `json:"media_ref"`
}

func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Body == "" && req.MediaRef == "" {
		writeErr(w, http.StatusBadRequest, "body or media_ref required")
		return
	}
	dest, err := dispatch.Normalize(req.Destination, a.CountryPrefix)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "destination required")
		return
	}
	id, err := a.Store.Enqueue(dest, req.Body, req.MediaRef)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "status": model.MessagePending})
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", model.MessagePending, model.MessageClaimed, model.MessageSent, model.MessageFailed:
	default:
		writeErr(w, http.StatusBadRequest, "unknown status")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	items, err := a.Store.ListMessages(status, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []model.QueuedMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

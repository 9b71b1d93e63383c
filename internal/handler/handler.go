package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"blingsync/internal/handler/config"
	"blingsync/internal/logger"
	"blingsync/internal/metrics"
	"blingsync/internal/model"
	syncsvc "blingsync/internal/sync"
	"blingsync/internal/token"
)

func Serve(cfg config.Config, service syncsvc.Service, tokens token.Provider, zaplog *zap.Logger) error {
	h := newHandler(service, tokens, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	return srv.ListenAndServe()
}

type handler struct {
	service syncsvc.Service
	tokens  token.Provider
	zaplog  *zap.Logger
}

func newHandler(service syncsvc.Service, tokens token.Provider, zaplog *zap.Logger) *handler {
	return &handler{
		service: service,
		tokens:  tokens,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sync", logger.RequestLogMdlw(h.PostSync, h.zaplog))
	mux.HandleFunc("GET /sync/status", logger.RequestLogMdlw(h.GetSyncStatus, h.zaplog))
	mux.HandleFunc("GET /auth/start", logger.RequestLogMdlw(h.GetAuthStart, h.zaplog))
	mux.HandleFunc("GET /auth/callback", logger.RequestLogMdlw(h.GetAuthCallback, h.zaplog))
	mux.HandleFunc("GET /healthz", h.GetHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return mux
}

type PostSyncAllJSONResponse struct {
	TotalAccounts int                    `json:"totalAccounts"`
	Results       []PostSyncAccountEntry `json:"results"`
}

type PostSyncAccountEntry struct {
	Account string            `json:"account"`
	Summary *model.RunSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (h *handler) PostSync(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID != "" {
		summary, err := h.service.RunSync(r.Context(), accountID)
		if err != nil {
			h.serviceError(w, err)
			return
		}
		h.writeJSON(w, summary)
		return
	}

	accounts := h.service.Accounts()
	response := PostSyncAllJSONResponse{TotalAccounts: len(accounts)}
	for _, acc := range accounts {
		entry := PostSyncAccountEntry{Account: acc.ID}
		summary, err := h.service.RunSync(r.Context(), acc.ID)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Summary = &summary
		}
		response.Results = append(response.Results, entry)
	}
	h.writeJSON(w, response)
}

type GetSyncStatusEntry struct {
	Account string               `json:"account"`
	State   model.PersistedState `json:"state"`
}

func (h *handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID != "" {
		state, err := h.service.GetState(r.Context(), accountID)
		if err != nil {
			h.serviceError(w, err)
			return
		}
		h.writeJSON(w, GetSyncStatusEntry{Account: accountID, State: state})
		return
	}

	var entries []GetSyncStatusEntry
	for _, acc := range h.service.Accounts() {
		state, err := h.service.GetState(r.Context(), acc.ID)
		if err != nil {
			h.serviceError(w, err)
			return
		}
		entries = append(entries, GetSyncStatusEntry{Account: acc.ID, State: state})
	}
	h.writeJSON(w, entries)
}

func (h *handler) GetAuthStart(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		http.Error(w, "account parameter is required", http.StatusBadRequest)
		return
	}

	authURL, err := h.tokens.AuthCodeURL(accountID)
	if err != nil {
		if errors.Is(err, token.ErrUnknownAccount) || errors.Is(err, token.ErrNoCredentials) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *handler) GetAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "state and code parameters are required", http.StatusBadRequest)
		return
	}

	accountID, err := h.tokens.Exchange(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, token.ErrStateMismatch) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"account": accountID,
		"status":  "authorized",
	})
}

func (h *handler) GetHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncsvc.ErrUnknownAccount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrInvalidWorkflow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJSON)
}

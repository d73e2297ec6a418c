package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rescp17/bdx/pkg/discovery"
	"github.com/rescp17/bdx/pkg/transfer"
	"github.com/rescp17/bdx/pkg/transport/ws"
)

// API is the HTTP surface of a BDX responder: the WebSocket endpoint that
// transfers run over, and read-only status and metrics routes.
type API struct {
	router    chi.Router
	runner    *transfer.Runner
	responder transfer.Responder
	registry  *transfer.StatusRegistry
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// NewAPI creates and initializes a new API instance. A nil registry or
// gatherer disables the matching routes.
func NewAPI(runner *transfer.Runner, responder transfer.Responder, registry *transfer.StatusRegistry, gatherer prometheus.Gatherer) *API {
	api := &API{
		router:    chi.NewRouter(),
		runner:    runner,
		responder: responder,
		registry:  registry,
		gatherer:  gatherer,
		logger:    slog.Default().With("component", "api"),
	}
	api.registerRoutes()
	return api
}

// ServeHTTP allows the API struct to satisfy the http.Handler interface.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// registerRoutes connects all handlers and middleware.
func (a *API) registerRoutes() {
	a.router.Use(middleware.Recoverer)

	a.router.Get(discovery.DefaultPath, a.BDXHandler)
	a.router.Get("/healthz", a.HealthHandler)
	if a.registry != nil {
		a.router.Get("/transfers", a.ListTransfersHandler)
		a.router.Get("/transfers/{id}", a.GetTransferHandler)
	}
	if a.gatherer != nil {
		a.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
}

// BDXHandler upgrades the request and serves one transfer on it.
func (a *API) BDXHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Upgrade(w, r)
	if err != nil {
		// The upgrader has already answered the request.
		a.logger.Warn("Rejected BDX connection", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	// Serve logs and counts its own failures.
	_, _ = a.runner.Serve(r.Context(), conn, a.responder)
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TransfersResponse{
		Transfers: a.registry.List(),
		Overall:   a.registry.Overall(),
	})
}

func (a *API) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	status, err := a.registry.Get(chi.URLParam(r, "id"))
	if errors.Is(err, transfer.ErrTransferNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// TransfersResponse is the body of GET /transfers.
type TransfersResponse struct {
	Transfers []*transfer.TransferStatus `json:"transfers"`
	Overall   transfer.OverallProgress   `json:"overall"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

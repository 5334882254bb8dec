// Package api serves the harness over HTTP: purchase simulation, crash
// flag control, ledger bootstrap and the live log stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/psantana5/crashloop/pkg/crash"
	"github.com/psantana5/crashloop/pkg/invoke"
	"github.com/psantana5/crashloop/pkg/kv"
	"github.com/psantana5/crashloop/pkg/ledger"
	"github.com/psantana5/crashloop/pkg/logging"
	"github.com/psantana5/crashloop/pkg/logstream"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DefaultWebsiteInventory is the stock the storefront advertises.
const DefaultWebsiteInventory = 1000

// Targets names the purchase function for each ledger mode.
type Targets struct {
	Flowstate string
	Regular   string
}

// For returns the target of mode.
func (t Targets) For(mode ledger.Mode) string {
	if mode == ledger.ModeRegular {
		return t.Regular
	}
	return t.Flowstate
}

// Deps are the collaborators a Handler needs. Store, Toggler, Retrier and
// Hub are required.
type Deps struct {
	Store     kv.Store
	Toggler   *crash.Toggler
	Retrier   *invoke.Retrier
	Bootstrap *ledger.Bootstrapper
	Hub       *logstream.Hub
	Metrics   http.Handler
	Logger    *logging.Logger
	Targets   Targets
}

// Handler handles harness API requests
type Handler struct {
	deps             Deps
	logger           *logging.Logger
	useFlowstate     atomic.Bool
	inflight         atomic.Int64
	websiteInventory int
	startTime        time.Time
}

// NewHandler creates a handler with flowstate mode enabled.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Bootstrap == nil {
		deps.Bootstrap = ledger.NewBootstrapper(deps.Store, deps.Logger, "")
	}
	h := &Handler{
		deps:             deps,
		logger:           deps.Logger,
		websiteInventory: DefaultWebsiteInventory,
		startTime:        time.Now(),
	}
	h.useFlowstate.Store(true)
	return h
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/data", h.Data).Methods("POST")
	r.HandleFunc("/confirmPayment", h.ConfirmPayment).Methods("POST")

	r.HandleFunc("/toggleCrash", h.ToggleCrash).Methods("POST")
	r.HandleFunc("/crash", h.CrashStatus).Methods("GET")
	r.HandleFunc("/toggleFlowstate", h.ToggleFlowstate).Methods("POST")

	r.HandleFunc("/createTables", h.createAll).Methods("POST")
	r.HandleFunc("/createCrashTable", h.create(ledger.CrashTable)).Methods("POST")
	r.HandleFunc("/createInventoryTable", h.create(ledger.InventoryTable)).Methods("POST")
	r.HandleFunc("/createBankTable", h.create(ledger.BankTable)).Methods("POST")
	r.HandleFunc("/createInventoryTableReg", h.create(ledger.InventoryTableReg)).Methods("POST")
	r.HandleFunc("/createBankTableReg", h.create(ledger.BankTableReg)).Methods("POST")

	r.HandleFunc("/logs", h.PostLog).Methods("POST")
	r.Handle("/logs/stream", h.deps.Hub).Methods("GET")

	r.HandleFunc("/health", h.Health).Methods("GET")
	if h.deps.Metrics != nil {
		r.Handle("/metrics", h.deps.Metrics).Methods("GET")
	}
}

// UseFlowstate reports the current ledger mode switch.
func (h *Handler) UseFlowstate() bool {
	return h.useFlowstate.Load()
}

// InFlight returns the number of purchases still being retried.
func (h *Handler) InFlight() int64 {
	return h.inflight.Load()
}

// Data returns the storefront view of the active ledger.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	useFlowstate := h.UseFlowstate()
	bal, err := ledger.Snapshot(r.Context(), h.deps.Store, ledger.ModeFor(useFlowstate))
	if err != nil {
		h.logger.Error("Reading ledger failed", map[string]interface{}{"error": err.Error()})
		writeError(w, ledgerStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": map[string]interface{}{
			"websiteInventory":   h.websiteInventory,
			"warehouseInventory": bal.Inventory,
			"customerBank":       bal.Bank,
			"useFlowstate":       useFlowstate,
		},
	})
}

// ConfirmPayment runs the purchase function until it succeeds and returns
// the balances it reports. The request stays open for as long as the
// function keeps crashing.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	h.inflight.Add(1)
	defer h.inflight.Add(-1)

	mode := ledger.ModeFor(h.UseFlowstate())
	target := h.deps.Targets.For(mode)
	h.logger.Info("Purchase started", map[string]interface{}{"mode": string(mode), "target": target})

	res, err := h.deps.Retrier.Invoke(r.Context(), target)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}

	bal, err := ledger.ParsePurchaseResponse(res.Payload)
	if err != nil {
		h.logger.Error("Purchase response unreadable", map[string]interface{}{"error": err.Error(), "request_id": res.RequestID})
		writeError(w, http.StatusBadGateway, err)
		return
	}

	h.logger.Info("Purchase completed", map[string]interface{}{
		"attempts":  res.Attempts,
		"inventory": bal.Inventory,
		"bank":      bal.Bank,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"warehouseInventory": bal.Inventory,
		"customerBank":       bal.Bank,
	})
}

// ToggleCrash flips the crash flag.
func (h *Handler) ToggleCrash(w http.ResponseWriter, r *http.Request) {
	value, err := h.deps.Toggler.Toggle(r.Context())
	if err != nil {
		writeError(w, crashStatus(err), err)
		return
	}
	if value == crash.On {
		h.logger.Info("Crash mode enabled")
	} else {
		h.logger.Info("Crash mode disabled")
	}
	writeJSON(w, http.StatusOK, map[string]string{"crashed": value})
}

// CrashStatus returns the flag without changing it.
func (h *Handler) CrashStatus(w http.ResponseWriter, r *http.Request) {
	value, err := h.deps.Toggler.Current(r.Context())
	if err != nil {
		writeError(w, crashStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"crashed": value})
}

// ToggleFlowstate switches purchases between the two ledger modes.
func (h *Handler) ToggleFlowstate(w http.ResponseWriter, r *http.Request) {
	for {
		old := h.useFlowstate.Load()
		if h.useFlowstate.CompareAndSwap(old, !old) {
			h.logger.Info("Ledger mode switched", map[string]interface{}{"useFlowstate": !old})
			writeJSON(w, http.StatusOK, map[string]bool{"useFlowstate": !old})
			return
		}
	}
}

func (h *Handler) create(t ledger.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.deps.Bootstrap.Create(r.Context(), t); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "ok"})
	}
}

func (h *Handler) createAll(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Bootstrap.CreateAll(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "ok"})
}

// PostLog broadcasts a client-supplied message to stream subscribers.
func (h *Handler) PostLog(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No message provided"})
		return
	}

	h.logger.Debug("Broadcasting log", map[string]interface{}{"message": body.Message})
	h.deps.Hub.Broadcast(body.Message)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Health returns process and host status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"use_flowstate":  h.UseFlowstate(),
		"inflight":       h.InFlight(),
		"subscribers":    h.deps.Hub.Subscribers(),
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		resp["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory_used_percent"] = vm.UsedPercent
		resp["memory_available_bytes"] = vm.Available
	}
	writeJSON(w, http.StatusOK, resp)
}

func crashStatus(err error) int {
	switch {
	case errors.Is(err, crash.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, crash.ErrMalformedState):
		return http.StatusInternalServerError
	case errors.Is(err, crash.ErrConcurrentToggle):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrMalformedBalance):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

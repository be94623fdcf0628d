package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fusion-network/pvm/internal/connectors"
	"github.com/fusion-network/pvm/internal/engine"
	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/marketcfg"
	"github.com/fusion-network/pvm/internal/state"
	"github.com/fusion-network/pvm/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes read-only vault data over HTTP.
type WebServer struct {
	router  *mux.Router
	port    string
	engine  *engine.Engine
	markets *marketcfg.Store
	fuses   *connectors.Registry
}

// NewWebServer creates a new web server instance.
func NewWebServer(port string, eng *engine.Engine, markets *marketcfg.Store, fuses *connectors.Registry) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		engine:  eng,
		markets: markets,
		fuses:   fuses,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus scrape endpoint
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/vault/fees", ws.handleGetFeeState).Methods("GET")
	api.HandleFunc("/markets", ws.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{id}", ws.handleGetMarket).Methods("GET")
	api.HandleFunc("/fuses", ws.handleGetFuses).Methods("GET")
	api.HandleFunc("/withdraw-routes", ws.handleGetWithdrawRoutes).Methods("GET")
	api.HandleFunc("/executions", ws.handleGetExecutions).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns comprehensive server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var hasErrors bool

	// Latest committed execution, if any
	var executionInfo map[string]interface{}
	latest, execErr := state.GetRecentExecutions(1)
	if execErr == nil && len(latest) > 0 {
		exec := latest[0]
		executionInfo = map[string]interface{}{
			"execution_id":     exec.ExecutionID,
			"finished_at":      exec.FinishedAt,
			"actions_executed": len(exec.Receipts),
			"markets_touched":  exec.MarketsTouched,
		}
	} else {
		executionInfo = map[string]interface{}{
			"execution_id":     nil,
			"finished_at":      nil,
			"actions_executed": 0,
			"markets_touched":  []types.MarketID{},
		}
		if execErr != nil {
			hasErrors = true
		}
	}

	// Database connection status
	dbHealthy := true
	if dbErr := state.TestDBConnection(); dbErr != nil {
		dbHealthy = false
		hasErrors = true
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "pvm-plasma-vault-manager",
			"version": "1.0.0",
		},
		"pvm_status": map[string]interface{}{
			"database_healthy":  dbHealthy,
			"has_recent_errors": hasErrors,
			"execution_info":    executionInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaultSummary returns vault summary statistics
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.engine.Summary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetFeeState returns the current fee accrual record
func (ws *WebServer) handleGetFeeState(w http.ResponseWriter, r *http.Request) {
	feeState := ws.engine.FeeState()

	response := map[string]interface{}{
		"fee_state": feeState,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

type marketView struct {
	MarketID    types.MarketID `json:"market_id"`
	Substrates  []string       `json:"substrates"`
	BalanceFuse string         `json:"balance_fuse"`
}

func (ws *WebServer) marketViewFor(marketID types.MarketID) (marketView, error) {
	cfg, err := ws.markets.Config(marketID)
	if err != nil {
		return marketView{}, err
	}

	substrates := make([]string, len(cfg.Substrates))
	for i, substrate := range cfg.Substrates {
		substrates[i] = substrate.String()
	}

	return marketView{
		MarketID:    cfg.ID,
		Substrates:  substrates,
		BalanceFuse: cfg.BalanceFuse.Hex(),
	}, nil
}

// handleGetMarkets returns all configured markets
func (ws *WebServer) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	marketIDs := ws.markets.Markets()

	views := make([]marketView, 0, len(marketIDs))
	for _, marketID := range marketIDs {
		view, err := ws.marketViewFor(marketID)
		if err != nil {
			continue // removed concurrently; skip
		}
		views = append(views, view)
	}

	response := map[string]interface{}{
		"markets": views,
		"count":   len(views),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetMarket returns a specific market configuration by ID
func (ws *WebServer) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idStr := vars["id"]

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid market ID")
		return
	}

	view, err := ws.marketViewFor(types.MarketID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Market not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, view)
}

// handleGetFuses returns the registered fuse whitelist
func (ws *WebServer) handleGetFuses(w http.ResponseWriter, r *http.Request) {
	registered := ws.fuses.List()

	type fuseView struct {
		Address  string         `json:"address"`
		Name     string         `json:"name"`
		Version  string         `json:"version"`
		MarketID types.MarketID `json:"market_id"`
	}

	views := make([]fuseView, len(registered))
	for i, fuse := range registered {
		views[i] = fuseView{
			Address:  fuse.Address().Hex(),
			Name:     fuse.Name(),
			Version:  fuse.Version(),
			MarketID: fuse.MarketID(),
		}
	}

	response := map[string]interface{}{
		"fuses": views,
		"count": len(views),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetWithdrawRoutes returns the configured instant withdrawal order
func (ws *WebServer) handleGetWithdrawRoutes(w http.ResponseWriter, r *http.Request) {
	routes := ws.engine.WithdrawRoutes()

	response := map[string]interface{}{
		"routes": routes,
		"count":  len(routes),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetExecutions returns paginated execution history
func (ws *WebServer) handleGetExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	executions, err := state.GetRecentExecutions(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent executions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve executions")
		return
	}

	response := map[string]interface{}{
		"executions": executions,
		"count":      len(executions),
		"limit":      limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"vaultchain/core"
	"vaultchain/observability"
	"vaultchain/rpc/modules"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	visitorTTL = 10 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// mutatingMethods lists every method that writes state and therefore
// requires the bearer token.
var mutatingMethods = map[string]struct{}{
	"settlement_repayAndSettle":       {},
	"settlement_settleOrLiquidate":    {},
	"settlement_liquidate":            {},
	"settlement_batchLiquidate":       {},
	"settlement_pause":                {},
	"settlement_resume":               {},
	"settlement_authorizeUpgrade":     {},
	"risk_updateLiquidationThreshold": {},
	"risk_updateMinHealthFactor":      {},
	"risk_refreshModuleCache":         {},
	"payout_updateConfig":             {},
	"payout_updateRecipients":         {},
	"payout_updateRates":              {},
	"registry_register":               {},
	"access_grantRole":                {},
	"access_revokeRole":               {},
	"viewcache_invalidate":            {},
}

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Server hosts the JSON-RPC endpoint and the websocket event stream.
type Server struct {
	node *core.Node
	log  *slog.Logger
	hub  *Hub

	authToken string

	limiterMu sync.Mutex
	limiters  map[string]*visitorLimiter
	rps       rate.Limit
	burst     int

	settlement *modules.SettlementModule
	risk       *modules.RiskModule
	payout     *modules.PayoutModule
	ledger     *modules.LedgerModule
	registry   *modules.RegistryModule
	access     *modules.AccessModule
	viewCache  *modules.ViewCacheModule
}

// Options tunes the RPC server.
type Options struct {
	// AuthToken guards mutating methods. Leaving it empty rejects every
	// mutating call.
	AuthToken string
	// RateLimitRPS and RateLimitBurst bound per-client request rates.
	// Non-positive values fall back to permissive defaults.
	RateLimitRPS   float64
	RateLimitBurst int
	// Hub carries committed module events to websocket subscribers. A
	// fresh hub is created when nil.
	Hub *Hub
	// Log defaults to slog.Default when nil.
	Log *slog.Logger
}

// NewServer wires the per-module gateways against the node.
func NewServer(node *core.Node, opts Options) *Server {
	logger := opts.Log
	if logger == nil {
		logger = slog.Default()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub()
	}
	rps := opts.RateLimitRPS
	if rps <= 0 {
		rps = 50
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}
	return &Server{
		node:       node,
		log:        logger,
		hub:        hub,
		authToken:  strings.TrimSpace(opts.AuthToken),
		limiters:   make(map[string]*visitorLimiter),
		rps:        rate.Limit(rps),
		burst:      burst,
		settlement: modules.NewSettlementModule(node),
		risk:       modules.NewRiskModule(node),
		payout:     modules.NewPayoutModule(node),
		ledger:     modules.NewLedgerModule(node),
		registry:   modules.NewRegistryModule(node),
		access:     modules.NewAccessModule(node),
		viewCache:  modules.NewViewCacheModule(node),
	}
}

// Hub exposes the event hub so the process can wire it as an emitter sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler hosting the JSON-RPC endpoint at / and
// the websocket event stream at /ws/events.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", otelhttp.NewHandler(http.HandlerFunc(s.handle), "vaultchain.rpc"))
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

// Start serves the RPC API on addr until the listener fails. Processes that
// need graceful shutdown should mount Handler on their own http.Server.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return srv.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeModuleError(w http.ResponseWriter, id interface{}, err *modules.ModuleError) {
	if err == nil {
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
		return
	}
	status := err.HTTPStatus
	if status <= 0 {
		status = http.StatusBadRequest
	}
	code := err.Code
	if code == 0 {
		code = codeServerError
	}
	writeError(w, status, id, code, err.Message, err.Data)
}

func moduleErrCode(err *modules.ModuleError) int {
	if err == nil || err.Code == 0 {
		return codeServerError
	}
	return err.Code
}

// handle is the main request handler. It validates the envelope, applies the
// rate limit and bearer auth, and routes to the per-method handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module := moduleOf(req.Method)
	source := clientSource(r)
	if !s.allowSource(source, time.Now()) {
		observability.ModuleMetrics().RecordThrottle(module, "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate exceeded", nil)
		return
	}
	if _, mutating := mutatingMethods[req.Method]; mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.ModuleMetrics().RecordThrottle(module, "unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	started := time.Now()
	code := s.dispatch(w, r, req)
	duration := time.Since(started)
	observability.ModuleMetrics().Observe(module, req.Method, code, duration)

	logger := s.log.With("request_id", uuid.NewString(), "method", req.Method, "client", source)
	if code != 0 {
		logger.Warn("rpc request failed", "code", code, "duration", duration)
		return
	}
	logger.Debug("rpc request served", "duration", duration)
}

// dispatch routes one validated request and reports the JSON-RPC error code
// the handler wrote, zero for success.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	switch req.Method {
	case "settlement_repayAndSettle":
		return s.handleSettlementRepayAndSettle(w, r, req)
	case "settlement_settleOrLiquidate":
		return s.handleSettlementSettleOrLiquidate(w, r, req)
	case "settlement_liquidate":
		return s.handleSettlementLiquidate(w, r, req)
	case "settlement_batchLiquidate":
		return s.handleSettlementBatchLiquidate(w, r, req)
	case "settlement_pause":
		return s.handleSettlementPause(w, r, req)
	case "settlement_resume":
		return s.handleSettlementResume(w, r, req)
	case "settlement_authorizeUpgrade":
		return s.handleSettlementAuthorizeUpgrade(w, r, req)
	case "risk_isLiquidatable":
		return s.handleRiskIsLiquidatable(w, r, req)
	case "risk_riskScore":
		return s.handleRiskScore(w, r, req)
	case "risk_assessment":
		return s.handleRiskAssessment(w, r, req)
	case "risk_batchIsLiquidatable":
		return s.handleRiskBatchIsLiquidatable(w, r, req)
	case "risk_batchRiskScores":
		return s.handleRiskBatchRiskScores(w, r, req)
	case "risk_parameters":
		return s.handleRiskParameters(w, r, req)
	case "risk_updateLiquidationThreshold":
		return s.handleRiskUpdateLiquidationThreshold(w, r, req)
	case "risk_updateMinHealthFactor":
		return s.handleRiskUpdateMinHealthFactor(w, r, req)
	case "risk_refreshModuleCache":
		return s.handleRiskRefreshModuleCache(w, r, req)
	case "payout_getPolicy":
		return s.handlePayoutGetPolicy(w, r, req)
	case "payout_updateConfig":
		return s.handlePayoutUpdateConfig(w, r, req)
	case "payout_updateRecipients":
		return s.handlePayoutUpdateRecipients(w, r, req)
	case "payout_updateRates":
		return s.handlePayoutUpdateRates(w, r, req)
	case "registry_resolve":
		return s.handleRegistryResolve(w, r, req)
	case "registry_register":
		return s.handleRegistryRegister(w, r, req)
	case "ledger_getOrder":
		return s.handleLedgerGetOrder(w, r, req)
	case "ledger_getDebt":
		return s.handleLedgerGetDebt(w, r, req)
	case "ledger_getCollateral":
		return s.handleLedgerGetCollateral(w, r, req)
	case "ledger_collateralAssets":
		return s.handleLedgerCollateralAssets(w, r, req)
	case "access_grantRole":
		return s.handleAccessGrantRole(w, r, req)
	case "access_revokeRole":
		return s.handleAccessRevokeRole(w, r, req)
	case "access_hasRole":
		return s.handleAccessHasRole(w, r, req)
	case "viewcache_snapshot":
		return s.handleViewCacheSnapshot(w, r, req)
	case "viewcache_invalidate":
		return s.handleViewCacheInvalidate(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return codeMethodNotFound
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// allowSource applies the per-client token bucket. Idle entries fall out of
// the map so one-off clients do not accumulate.
func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	for id, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(s.limiters, id)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		entry = &visitorLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// moduleOf extracts the module prefix from a method name for metric labels.
func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}

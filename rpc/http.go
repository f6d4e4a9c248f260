package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vestchain/core/state"
	"vestchain/native/accrual"
	"vestchain/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNothingToClaim = -32050
	codeZeroAmount     = -32051
	codeSelfReferral   = -32052
	codeCodeNotFound   = -32053
	codeCodeFormat     = -32054
	codeDayFinalized   = -32055
	codeNoDaysToTick   = -32056
	codePaymentFailed  = -32057
	codeScheduleState  = -32058
)

// Server exposes the accrual engine over JSON-RPC.
type Server struct {
	engine    *accrual.Engine
	manager   *state.Manager
	clock     clockwork.Clock
	logger    *slog.Logger
	authToken string
}

// NewServer wires the RPC surface to the engine. The clock supplies the
// external current time for every mutating call.
func NewServer(engine *accrual.Engine, manager *state.Manager, clock clockwork.Clock, logger *slog.Logger) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		manager:   manager,
		clock:     clock,
		logger:    logger,
		authToken: strings.TrimSpace(os.Getenv("VEST_RPC_TOKEN")),
	}
}

// Handler builds the HTTP routing tree: health, metrics, and the JSON-RPC
// endpoint at the root.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the RPC endpoint on the supplied address.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
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

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "admin token not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "bearer token required"}
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) != 1 {
		s.logger.Warn("rejected admin credential", logging.MaskField("token", presented))
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

// requireAdminRole verifies that the acting address named in the request
// params holds ROLE_ACCRUAL_ADMIN. Admin methods check this on top of the
// bearer token.
func (s *Server) requireAdminRole(caller string) *RPCError {
	addr, err := parseAddress(caller)
	if err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "caller address required"}
	}
	if !s.manager.HasRole(state.RoleAccrualAdmin, addr) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "caller lacks admin role"}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "request too large or unreadable", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch req.Method {
	case "accrual_initializeSchedule":
		s.handleInitializeSchedule(w, r, &req)
	case "accrual_updateEpochTotals":
		s.handleUpdateEpochTotals(w, r, &req)
	case "accrual_contribute":
		s.handleContribute(w, &req)
	case "accrual_claim":
		s.handleClaim(w, &req)
	case "accrual_withdrawBuyback":
		s.handleWithdrawBuyback(w, &req)
	case "accrual_tick":
		s.handleTick(w, &req)
	case "accrual_tickLimited":
		s.handleTickLimited(w, &req)
	case "accrual_backfillContribution":
		s.handleBackfillContribution(w, r, &req)
	case "accrual_backfillTransfer":
		s.handleBackfillTransfer(w, r, &req)
	case "accrual_previewClaimable":
		s.handlePreviewClaimable(w, &req)
	case "accrual_unitsAtDay":
		s.handleUnitsAtDay(w, &req)
	case "accrual_epochTotals":
		s.handleEpochTotals(w, &req)
	case "accrual_referralCodeOf":
		s.handleReferralCodeOf(w, &req)
	case "accrual_resolveReferralCode":
		s.handleResolveReferralCode(w, &req)
	case "accrual_totalUnits":
		s.handleTotalUnits(w, &req)
	case "accrual_scheduleStatus":
		s.handleScheduleStatus(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

// writeEngineError maps engine sentinels onto stable RPC error codes.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, accrual.ErrNothingToClaim):
		writeError(w, http.StatusConflict, id, codeNothingToClaim, "nothing_to_claim", err.Error())
	case errors.Is(err, accrual.ErrZeroAmount):
		writeError(w, http.StatusBadRequest, id, codeZeroAmount, "zero_amount", err.Error())
	case errors.Is(err, accrual.ErrSelfReferral), errors.Is(err, accrual.ErrSelfTransfer):
		writeError(w, http.StatusBadRequest, id, codeSelfReferral, "self_referral", err.Error())
	case errors.Is(err, accrual.ErrReferralCodeNotFound):
		writeError(w, http.StatusNotFound, id, codeCodeNotFound, "referral_code_not_found", err.Error())
	case errors.Is(err, accrual.ErrInvalidReferralCode):
		writeError(w, http.StatusBadRequest, id, codeCodeFormat, "invalid_referral_code", err.Error())
	case errors.Is(err, accrual.ErrDayAlreadyFinalized):
		writeError(w, http.StatusConflict, id, codeDayFinalized, "day_already_finalized", err.Error())
	case errors.Is(err, accrual.ErrNoDaysToTick):
		writeError(w, http.StatusConflict, id, codeNoDaysToTick, "no_days_to_tick", err.Error())
	case errors.Is(err, accrual.ErrPaymentTransfer):
		writeError(w, http.StatusConflict, id, codePaymentFailed, "payment_transfer_failed", err.Error())
	case errors.Is(err, accrual.ErrScheduleNotInitialized),
		errors.Is(err, accrual.ErrScheduleAlreadyInitialized),
		errors.Is(err, accrual.ErrScheduleNotStarted),
		errors.Is(err, accrual.ErrInvalidEpochOrdering),
		errors.Is(err, accrual.ErrEpochStarted),
		errors.Is(err, accrual.ErrEpochNotFound):
		writeError(w, http.StatusConflict, id, codeScheduleState, "schedule_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}

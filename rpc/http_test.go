package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"vestchain/core/state"
	"vestchain/crypto"
	"vestchain/native/accrual"
	"vestchain/observability/logging"
	"vestchain/storage"
)

const testToken = "test-admin-token"

var rpcTestStart = time.Unix(1_700_000_000, 0)

func testBech32(b byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = b
	}
	return crypto.MustNewAddress(crypto.VestPrefix, raw[:]).String()
}

func newTestServer(t *testing.T) (*Server, *state.Manager, *clockwork.FakeClock) {
	t.Helper()
	t.Setenv("VEST_RPC_TOKEN", testToken)

	manager := state.NewManager(storage.NewMemDB())
	require.NoError(t, manager.RegisterToken("VST", "Vest Reward", 18))
	require.NoError(t, manager.RegisterToken("USDV", "Vest Payment", 18))

	var treasury [20]byte
	for i := range treasury {
		treasury[i] = 0xff
	}
	require.NoError(t, manager.Mint(treasury, "VST", big.NewInt(1_000_000)))

	var admin [20]byte
	for i := range admin {
		admin[i] = 0xad
	}
	require.NoError(t, manager.SetRole(state.RoleAccrualAdmin, admin))

	params := accrual.Params{
		DayLength:      86_400,
		BuybackRateBps: 500,
		PayoutQuantum:  big.NewInt(1),
		RewardToken:    "VST",
		PaymentToken:   "USDV",
		Treasury:       treasury,
	}
	engine, err := accrual.NewEngine(manager, manager, nil, params)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(rpcTestStart)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(engine, manager, clock, logger), manager, clock
}

type testResponse struct {
	Result map[string]interface{} `json:"result"`
	Error  *RPCError              `json:"error"`
}

func call(t *testing.T, server *Server, method string, params interface{}, token string) (int, testResponse) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func initTestSchedule(t *testing.T, server *Server) {
	t.Helper()
	status, resp := call(t, server, "accrual_initializeSchedule", initializeScheduleParams{
		Caller:    testBech32(0xad),
		StartTime: rpcTestStart.Unix(),
		Epochs: []epochParam{
			{EndDay: 9, PrimaryTotal: "1000", ReferralTotal: "100"},
		},
	}, testToken)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestHealthz(t *testing.T) {
	server, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestMethodNotFound(t *testing.T) {
	server, _, _ := newTestServer(t)
	status, resp := call(t, server, "accrual_bogus", nil, "")
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestAdminMethodsRequireAuth(t *testing.T) {
	server, _, _ := newTestServer(t)

	params := initializeScheduleParams{
		Caller:    testBech32(0xad),
		StartTime: rpcTestStart.Unix(),
		Epochs:    []epochParam{{EndDay: 9, PrimaryTotal: "1000"}},
	}
	status, resp := call(t, server, "accrual_initializeSchedule", params, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = call(t, server, "accrual_initializeSchedule", params, "wrong")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// A valid token is not enough: the caller must hold the admin role.
	unprivileged := params
	unprivileged.Caller = testBech32(2)
	status, resp = call(t, server, "accrual_initializeSchedule", unprivileged, testToken)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	noCaller := params
	noCaller.Caller = ""
	status, resp = call(t, server, "accrual_initializeSchedule", noCaller, testToken)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = call(t, server, "accrual_initializeSchedule", params, testToken)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestScheduleStatus(t *testing.T) {
	server, _, _ := newTestServer(t)
	initTestSchedule(t, server)

	status, resp := call(t, server, "accrual_scheduleStatus", nil, "")
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Equal(t, true, resp.Result["initialized"])
	require.Equal(t, float64(rpcTestStart.Unix()), resp.Result["startTime"])
}

func TestContributeClaimFlow(t *testing.T) {
	server, manager, clock := newTestServer(t)
	initTestSchedule(t, server)

	participant := testBech32(1)
	status, resp := call(t, server, "accrual_contribute", contributeParams{
		Participant: participant,
		Units:       "100",
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Equal(t, "100", resp.Result["units"])
	require.NotEmpty(t, resp.Result["code"])

	clock.Advance(10 * 24 * time.Hour)

	status, resp = call(t, server, "accrual_claim", claimParams{
		Participant: participant,
		Stream:      "primary",
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Equal(t, "900", resp.Result["paid"])
	require.Equal(t, float64(9), resp.Result["toDay"])

	var addr [20]byte
	for i := range addr {
		addr[i] = 1
	}
	balance, err := manager.Balance(addr, "VST")
	require.NoError(t, err)
	require.Equal(t, int64(900), balance.Int64())
}

func TestClaimNothingMapsToSentinelCode(t *testing.T) {
	server, _, _ := newTestServer(t)
	initTestSchedule(t, server)

	status, resp := call(t, server, "accrual_claim", claimParams{
		Participant: testBech32(1),
		Stream:      "primary",
	}, "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeNothingToClaim, resp.Error.Code)
}

func TestContributeInvalidAddress(t *testing.T) {
	server, _, _ := newTestServer(t)
	initTestSchedule(t, server)

	status, resp := call(t, server, "accrual_contribute", contributeParams{
		Participant: "not-an-address",
		Units:       "100",
	}, "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestReferralEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t)
	initTestSchedule(t, server)

	participant := testBech32(1)
	status, resp := call(t, server, "accrual_referralCodeOf", participantParams{Participant: participant}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, resp.Result["assigned"])

	status, resp = call(t, server, "accrual_contribute", contributeParams{
		Participant: participant,
		Units:       "10",
	}, "")
	require.Equal(t, http.StatusOK, status)
	code, ok := resp.Result["code"].(string)
	require.True(t, ok)

	status, resp = call(t, server, "accrual_resolveReferralCode", resolveCodeParams{Code: code}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, participant, resp.Result["participant"])

	status, resp = call(t, server, "accrual_resolveReferralCode", resolveCodeParams{Code: "ZZZZ9999"}, "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeCodeNotFound, resp.Error.Code)
}

func TestTickEndpoints(t *testing.T) {
	server, _, clock := newTestServer(t)
	initTestSchedule(t, server)

	clock.Advance(3 * 24 * time.Hour)
	status, resp := call(t, server, "accrual_tick", nil, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(3), resp.Result["daysFinalized"])

	status, resp = call(t, server, "accrual_tickLimited", tickLimitedParams{MaxDays: 1}, "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeNoDaysToTick, resp.Error.Code)

	// A zero budget never finalizes anything, even with a backlog waiting.
	clock.Advance(2 * 24 * time.Hour)
	status, resp = call(t, server, "accrual_tickLimited", tickLimitedParams{MaxDays: 0}, "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeNoDaysToTick, resp.Error.Code)

	status, resp = call(t, server, "accrual_tickLimited", tickLimitedParams{MaxDays: 5}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(2), resp.Result["daysFinalized"])
}

func TestBackfillEndpointsRequireAuth(t *testing.T) {
	server, _, _ := newTestServer(t)
	initTestSchedule(t, server)

	params := backfillContributionParams{
		Caller:      testBech32(0xad),
		Participant: testBech32(1),
		Units:       "50",
		EventTime:   uint64(rpcTestStart.Unix()) + 100,
	}
	status, resp := call(t, server, "accrual_backfillContribution", params, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = call(t, server, "accrual_backfillContribution", params, testToken)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = call(t, server, "accrual_unitsAtDay", unitsAtDayParams{
		Participant: testBech32(1),
		Stream:      "primary",
		Day:         5,
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "50", resp.Result["units"])
}

func TestAuthRejectionNeverLogsToken(t *testing.T) {
	server, _, _ := newTestServer(t)
	buf := &bytes.Buffer{}
	server.logger = slog.New(slog.NewJSONHandler(buf, nil))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer leaky-credential")
	require.NotNil(t, server.requireAuth(req))

	require.NotZero(t, buf.Len())
	require.NotContains(t, buf.String(), "leaky-credential")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, logging.Redacted, entry["token"])
}

func TestParseErrorOnMalformedBody(t *testing.T) {
	server, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, codeParseError, resp.Error.Code)
}

package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"vestchain/crypto"
	"vestchain/native/accrual"
)

type epochParam struct {
	EndDay        uint64 `json:"endDay"`
	PrimaryTotal  string `json:"primaryTotal"`
	ReferralTotal string `json:"referralTotal"`
}

type initializeScheduleParams struct {
	Caller    string       `json:"caller"`
	StartTime int64        `json:"startTime"`
	Epochs    []epochParam `json:"epochs"`
}

type updateEpochTotalsParams struct {
	Caller        string `json:"caller"`
	Epoch         uint64 `json:"epoch"`
	PrimaryTotal  string `json:"primaryTotal"`
	ReferralTotal string `json:"referralTotal"`
}

type contributeParams struct {
	Participant  string `json:"participant"`
	Units        string `json:"units"`
	ReferralCode string `json:"referralCode"`
	Payment      string `json:"payment"`
}

type claimParams struct {
	Participant string `json:"participant"`
	Stream      string `json:"stream"`
}

type participantParams struct {
	Participant string `json:"participant"`
}

type tickLimitedParams struct {
	MaxDays uint64 `json:"maxDays"`
}

type backfillContributionParams struct {
	Caller        string `json:"caller"`
	Participant   string `json:"participant"`
	Referrer      string `json:"referrer"`
	Units         string `json:"units"`
	EventTime     uint64 `json:"eventTime"`
	PaidAmount    string `json:"paidAmount"`
	CreditBuyback bool   `json:"creditBuyback"`
}

type backfillTransferParams struct {
	Caller    string `json:"caller"`
	From      string `json:"from"`
	To        string `json:"to"`
	Units     string `json:"units"`
	EventTime uint64 `json:"eventTime"`
}

type previewClaimableParams struct {
	Participant string `json:"participant"`
	Stream      string `json:"stream"`
	AtTime      int64  `json:"atTime"`
}

type unitsAtDayParams struct {
	Participant string `json:"participant"`
	Stream      string `json:"stream"`
	Day         uint64 `json:"day"`
}

type epochTotalsParams struct {
	Epoch uint64 `json:"epoch"`
}

type resolveCodeParams struct {
	Code string `json:"code"`
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseAmount(raw string, required bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return nil, fmt.Errorf("amount required")
		}
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func (s *Server) handleInitializeSchedule(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params initializeScheduleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if roleErr := s.requireAdminRole(params.Caller); roleErr != nil {
		writeError(w, http.StatusForbidden, req.ID, roleErr.Code, roleErr.Message, roleErr.Data)
		return
	}
	epochs := make([]accrual.Epoch, 0, len(params.Epochs))
	for i, entry := range params.Epochs {
		primary, err := parseAmount(entry.PrimaryTotal, true)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("epoch %d: %v", i, err))
			return
		}
		referral, err := parseAmount(entry.ReferralTotal, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("epoch %d: %v", i, err))
			return
		}
		epochs = append(epochs, accrual.Epoch{EndDay: entry.EndDay, PrimaryTotal: primary, ReferralTotal: referral})
	}
	start := time.Unix(params.StartTime, 0)
	if params.StartTime == 0 {
		start = s.clock.Now()
	}
	if err := s.engine.InitializeSchedule(start, epochs); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"ok": true, "epochs": len(epochs)})
}

func (s *Server) handleUpdateEpochTotals(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params updateEpochTotalsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if roleErr := s.requireAdminRole(params.Caller); roleErr != nil {
		writeError(w, http.StatusForbidden, req.ID, roleErr.Code, roleErr.Message, roleErr.Data)
		return
	}
	primary, err := parseAmount(params.PrimaryTotal, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	referral, err := parseAmount(params.ReferralTotal, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.UpdateEpochTotals(params.Epoch, primary, referral); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"ok": true})
}

func (s *Server) handleContribute(w http.ResponseWriter, req *RPCRequest) {
	var params contributeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	units, err := parseAmount(params.Units, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	payment, err := parseAmount(params.Payment, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	receipt, err := s.engine.Contribute(s.clock.Now(), participant, units, strings.TrimSpace(params.ReferralCode), payment)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := map[string]interface{}{
		"day":          receipt.Day,
		"effectiveDay": receipt.EffectiveDay,
		"units":        receipt.Units.String(),
		"code":         receipt.Code,
	}
	if receipt.HasReferrer {
		result["referrer"] = crypto.MustNewAddress(crypto.VestPrefix, receipt.Referrer[:]).String()
		result["buybackCredited"] = receipt.BuybackCredited.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleClaim(w http.ResponseWriter, req *RPCRequest) {
	var params claimParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stream, err := accrual.ParseStream(params.Stream)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	receipt, err := s.engine.Claim(s.clock.Now(), participant, stream)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"receipt": receipt.ID,
		"stream":  receipt.Stream,
		"fromDay": receipt.FromDay,
		"toDay":   receipt.ToDay,
		"accrued": receipt.Accrued.String(),
		"paid":    receipt.Paid.String(),
	})
}

func (s *Server) handleWithdrawBuyback(w http.ResponseWriter, req *RPCRequest) {
	var params participantParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.engine.WithdrawBuyback(participant)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"amount": amount.String()})
}

func (s *Server) handleTick(w http.ResponseWriter, req *RPCRequest) {
	processed, err := s.engine.Tick(s.clock.Now())
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"daysFinalized": processed})
}

func (s *Server) handleTickLimited(w http.ResponseWriter, req *RPCRequest) {
	var params tickLimitedParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	processed, err := s.engine.TickLimited(s.clock.Now(), params.MaxDays)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"daysFinalized": processed})
}

func (s *Server) handleBackfillContribution(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params backfillContributionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if roleErr := s.requireAdminRole(params.Caller); roleErr != nil {
		writeError(w, http.StatusForbidden, req.ID, roleErr.Code, roleErr.Message, roleErr.Data)
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var referrer [20]byte
	if strings.TrimSpace(params.Referrer) != "" {
		referrer, err = parseAddress(params.Referrer)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	units, err := parseAmount(params.Units, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	paid, err := parseAmount(params.PaidAmount, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.BackfillContribution(participant, referrer, units, params.EventTime, paid, params.CreditBuyback); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"ok": true})
}

func (s *Server) handleBackfillTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params backfillTransferParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if roleErr := s.requireAdminRole(params.Caller); roleErr != nil {
		writeError(w, http.StatusForbidden, req.ID, roleErr.Code, roleErr.Message, roleErr.Data)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	units, err := parseAmount(params.Units, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.BackfillTransfer(from, to, units, params.EventTime); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"ok": true})
}

func (s *Server) handlePreviewClaimable(w http.ResponseWriter, req *RPCRequest) {
	var params previewClaimableParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stream, err := accrual.ParseStream(params.Stream)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	atTime := s.clock.Now()
	if params.AtTime > 0 {
		atTime = time.Unix(params.AtTime, 0)
	}
	amount, err := s.engine.PreviewClaimable(atTime, participant, stream)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"claimable": amount.String()})
}

func (s *Server) handleUnitsAtDay(w http.ResponseWriter, req *RPCRequest) {
	var params unitsAtDayParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stream, err := accrual.ParseStream(params.Stream)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	units, err := s.engine.UnitsAtDay(participant, stream, params.Day)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"units": units.String()})
}

func (s *Server) handleEpochTotals(w http.ResponseWriter, req *RPCRequest) {
	var params epochTotalsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	epoch, err := s.engine.EpochTotals(params.Epoch)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"endDay":        epoch.EndDay,
		"primaryTotal":  epoch.PrimaryTotal.String(),
		"referralTotal": epoch.ReferralTotal.String(),
	})
}

func (s *Server) handleReferralCodeOf(w http.ResponseWriter, req *RPCRequest) {
	var params participantParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	code, ok, err := s.engine.ReferralCodeOf(participant)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"code": code, "assigned": ok})
}

func (s *Server) handleResolveReferralCode(w http.ResponseWriter, req *RPCRequest) {
	var params resolveCodeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := s.engine.ResolveReferralCode(params.Code)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"participant": crypto.MustNewAddress(crypto.VestPrefix, owner[:]).String(),
	})
}

func (s *Server) handleTotalUnits(w http.ResponseWriter, req *RPCRequest) {
	total, err := s.engine.TotalUnits()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"totalUnits": total.String()})
}

func (s *Server) handleScheduleStatus(w http.ResponseWriter, req *RPCRequest) {
	sched, err := s.engine.ScheduleStatus()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"initialized":      sched.Initialized,
		"startTime":        sched.StartTime,
		"nextTickTime":     sched.NextTickTime,
		"lastFinalizedDay": sched.LastFinalizedDay,
	})
}

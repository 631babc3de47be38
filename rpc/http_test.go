package rpc

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleRejectsNonPost(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	env.server.handle(recorder, req)
	expectRPCError(t, recorder, http.StatusMethodNotAllowed, codeInvalidRequest)
}

func TestHandleRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.post(t, []byte("   "), false)
	rpcErr := expectRPCError(t, recorder, http.StatusBadRequest, codeInvalidRequest)
	if rpcErr.Message != "request body required" {
		t.Fatalf("unexpected message %q", rpcErr.Message)
	}
}

func TestHandleRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.post(t, []byte("{not json"), false)
	expectRPCError(t, recorder, http.StatusBadRequest, codeParseError)
}

func TestHandleRejectsUnsupportedVersion(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.post(t, []byte(`{"jsonrpc":"1.0","method":"risk_parameters","id":7}`), false)
	expectRPCError(t, recorder, http.StatusBadRequest, codeInvalidRequest)
}

func TestHandleRejectsMissingMethod(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.post(t, []byte(`{"jsonrpc":"2.0","id":7}`), false)
	rpcErr := expectRPCError(t, recorder, http.StatusBadRequest, codeInvalidRequest)
	if rpcErr.Message != "method required" {
		t.Fatalf("unexpected message %q", rpcErr.Message)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "settlement_unknown", true)
	expectRPCError(t, recorder, http.StatusNotFound, codeMethodNotFound)
}

func TestHandleRejectsOversizeBody(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.post(t, bytes.Repeat([]byte("a"), maxRequestBytes+1), false)
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected HTTP 413, got %d", recorder.Code)
	}
}

func TestMutatingMethodRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	params := map[string]string{"caller": pauserAddr.String()}

	recorder := env.call(t, "settlement_pause", false, params)
	expectRPCError(t, recorder, http.StatusUnauthorized, codeUnauthorized)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","method":"settlement_pause","params":[{"caller":"`+pauserAddr.String()+`"}],"id":1}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	badToken := httptest.NewRecorder()
	env.server.handle(badToken, req)
	expectRPCError(t, badToken, http.StatusUnauthorized, codeUnauthorized)
}

func TestReadMethodsNeedNoAuth(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "risk_parameters", false)
	var result struct {
		LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
		MinHealthFactorBps      uint64 `json:"minHealthFactorBps"`
	}
	decodeResult(t, recorder, &result)
	if result.LiquidationThresholdBps != 8000 || result.MinHealthFactorBps != 10000 {
		t.Fatalf("unexpected parameters %+v", result)
	}
}

func TestPauseBlocksLiquidationPath(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.call(t, "settlement_pause", true, map[string]string{"caller": pauserAddr.String()})
	var paused struct {
		Status string `json:"status"`
	}
	decodeResult(t, recorder, &paused)
	if paused.Status != "paused" {
		t.Fatalf("expected paused status, got %q", paused.Status)
	}

	liquidate := map[string]interface{}{
		"caller":           keeperAddr.String(),
		"liquidator":       keeperAddr.String(),
		"target":           riskyAddr.String(),
		"collateralAsset":  collAssetAddr.String(),
		"debtAsset":        debtAssetAddr.String(),
		"collateralAmount": "100",
		"debtAmount":       "100",
		"bonusBps":         0,
	}
	blocked := env.call(t, "settlement_liquidate", true, liquidate)
	expectRPCError(t, blocked, http.StatusServiceUnavailable, -32021)

	resumed := env.call(t, "settlement_resume", true, map[string]string{"caller": pauserAddr.String()})
	var active struct {
		Status string `json:"status"`
	}
	decodeResult(t, resumed, &active)
	if active.Status != "active" {
		t.Fatalf("expected active status, got %q", active.Status)
	}

	retried := env.call(t, "settlement_liquidate", true, liquidate)
	var executed struct {
		Status string `json:"status"`
	}
	decodeResult(t, retried, &executed)
	if executed.Status != "executed" {
		t.Fatalf("expected executed status, got %q", executed.Status)
	}
}

func TestRateLimitThrottles(t *testing.T) {
	env := newTestEnvWithOptions(t, Options{
		AuthToken:      testAuthToken,
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	})

	first := env.call(t, "risk_parameters", false)
	if first.Code != http.StatusOK {
		t.Fatalf("expected first call to pass, got HTTP %d: %s", first.Code, first.Body.String())
	}
	second := env.call(t, "risk_parameters", false)
	expectRPCError(t, second, http.StatusTooManyRequests, codeRateLimited)
}

func TestRepayAndSettleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "settlement_repayAndSettle", true, map[string]interface{}{
		"caller":   coreAddr.String(),
		"borrower": healthyAddr.String(),
		"orderId":  healthyOrder.String(),
		"asset":    debtAssetAddr.String(),
		"amount":   "400",
	})
	var result struct {
		OrderID     string `json:"orderId"`
		Outstanding string `json:"outstanding"`
		Status      string `json:"status"`
	}
	decodeResult(t, recorder, &result)
	if result.OrderID != healthyOrder.String() {
		t.Fatalf("unexpected order id %q", result.OrderID)
	}
	if result.Outstanding != "600" {
		t.Fatalf("expected outstanding 600, got %q", result.Outstanding)
	}
	if result.Status != "partially-repaid" {
		t.Fatalf("unexpected status %q", result.Status)
	}
}

func TestRepayAndSettleReleasesCollateralOnFullRepay(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "settlement_repayAndSettle", true, map[string]interface{}{
		"caller":   coreAddr.String(),
		"borrower": healthyAddr.String(),
		"orderId":  healthyOrder.String(),
		"asset":    debtAssetAddr.String(),
		"amount":   "1000",
	})
	var result struct {
		Outstanding string `json:"outstanding"`
		Status      string `json:"status"`
	}
	decodeResult(t, recorder, &result)
	if result.Status != "repaid" || result.Outstanding != "0" {
		t.Fatalf("expected full repayment, got %+v", result)
	}

	balance := env.call(t, "ledger_getCollateral", false, map[string]string{
		"user":  healthyAddr.String(),
		"asset": collAssetAddr.String(),
	})
	var collateral struct {
		Amount string `json:"amount"`
	}
	decodeResult(t, balance, &collateral)
	if collateral.Amount != "0" {
		t.Fatalf("expected released collateral, got %q", collateral.Amount)
	}
}

func TestSettleOrLiquidateOverRPC(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "settlement_settleOrLiquidate", true, map[string]string{
		"caller":  keeperAddr.String(),
		"orderId": riskyOrder.String(),
	})
	var result struct {
		OrderID     string `json:"orderId"`
		Outstanding string `json:"outstanding"`
		Status      string `json:"status"`
	}
	decodeResult(t, recorder, &result)
	if result.Status != "liquidated" {
		t.Fatalf("unexpected status %q", result.Status)
	}
	// Close factor 5000 bps halves the 1000 debt.
	if result.Outstanding != "500" {
		t.Fatalf("expected remaining debt 500, got %q", result.Outstanding)
	}

	debt := env.call(t, "ledger_getDebt", false, map[string]string{
		"user":  riskyAddr.String(),
		"asset": debtAssetAddr.String(),
	})
	var debtBalance struct {
		Amount string `json:"amount"`
	}
	decodeResult(t, debt, &debtBalance)
	if debtBalance.Amount != "500" {
		t.Fatalf("expected debt 500 after liquidation, got %q", debtBalance.Amount)
	}

	seized := env.call(t, "ledger_getCollateral", false, map[string]string{
		"user":  riskyAddr.String(),
		"asset": collAssetAddr.String(),
	})
	var collateral struct {
		Amount string `json:"amount"`
	}
	decodeResult(t, seized, &collateral)
	if collateral.Amount != "200" {
		t.Fatalf("expected collateral 200 after seizure, got %q", collateral.Amount)
	}
}

func TestSettleOrLiquidateRejectsHealthyOrder(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "settlement_settleOrLiquidate", true, map[string]string{
		"caller":  keeperAddr.String(),
		"orderId": healthyOrder.String(),
	})
	expectRPCError(t, recorder, http.StatusConflict, codeServerError)
}

func TestRiskAssessmentOverRPC(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "risk_assessment", false, map[string]string{"user": healthyAddr.String()})
	var result struct {
		User            string `json:"user"`
		Liquidatable    bool   `json:"liquidatable"`
		RiskScore       uint64 `json:"riskScore"`
		RiskLevel       string `json:"riskLevel"`
		HealthFactorBps string `json:"healthFactorBps"`
		SafetyMarginBps int64  `json:"safetyMarginBps"`
	}
	decodeResult(t, recorder, &result)
	if result.User != healthyAddr.String() {
		t.Fatalf("unexpected user %q", result.User)
	}
	if result.Liquidatable {
		t.Fatalf("healthy borrower flagged liquidatable")
	}
	if result.HealthFactorBps != "20000" {
		t.Fatalf("expected health factor 20000, got %q", result.HealthFactorBps)
	}
	if result.RiskScore != 20 || result.RiskLevel != "low" {
		t.Fatalf("unexpected banding %d/%q", result.RiskScore, result.RiskLevel)
	}
	if result.SafetyMarginBps != 12000 {
		t.Fatalf("expected safety margin 12000, got %d", result.SafetyMarginBps)
	}
}

func TestLedgerGetOrderOverRPC(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "ledger_getOrder", false, map[string]string{"orderId": riskyOrder.String()})
	var result struct {
		ID          string `json:"id"`
		Borrower    string `json:"borrower"`
		Asset       string `json:"asset"`
		Principal   string `json:"principal"`
		Outstanding string `json:"outstanding"`
		Closed      bool   `json:"closed"`
	}
	decodeResult(t, recorder, &result)
	if result.ID != riskyOrder.String() {
		t.Fatalf("unexpected id %q", result.ID)
	}
	if result.Borrower != riskyAddr.String() || result.Asset != debtAssetAddr.String() {
		t.Fatalf("unexpected parties %q/%q", result.Borrower, result.Asset)
	}
	if result.Principal != "1000" || result.Outstanding != "1000" || result.Closed {
		t.Fatalf("unexpected amounts %+v", result)
	}
}

func TestLedgerGetOrderUnknownID(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.call(t, "ledger_getOrder", false, map[string]string{"orderId": testOrderID(0x7f).String()})
	expectRPCError(t, recorder, http.StatusNotFound, codeInvalidParams)
}

func TestClientSourcePrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 70.41.3.18")
	if source := clientSource(req); source != "203.0.113.9" {
		t.Fatalf("expected forwarded client, got %q", source)
	}
}

func TestClientSourceFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	if source := clientSource(req); source != "10.0.0.5" {
		t.Fatalf("expected remote host, got %q", source)
	}
}

func TestModuleOf(t *testing.T) {
	cases := map[string]string{
		"settlement_repayAndSettle": "settlement",
		"risk_assessment":           "risk",
		"status":                    "status",
	}
	for method, want := range cases {
		if got := moduleOf(method); got != want {
			t.Fatalf("moduleOf(%q) = %q, want %q", method, got, want)
		}
	}
}

// Package modules holds the per-engine RPC gateways. Each gateway
// translates transport payloads (bech32 addresses, decimal amount strings)
// into engine calls and classifies engine errors into ModuleError values
// the HTTP layer can write directly.
package modules

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"vaultchain/crypto"
	"vaultchain/native/access"
	"vaultchain/native/common"
	"vaultchain/native/ledger"
	"vaultchain/native/oracle"
	"vaultchain/native/params"
	"vaultchain/native/payout"
	"vaultchain/native/registry"
	"vaultchain/native/risk"
	"vaultchain/native/settlement"
	"vaultchain/native/viewcache"
)

const (
	codeServerError   = -32000
	codeUnauthorized  = -32001
	codeInvalidParams = -32602
	codeModulePaused  = -32021
)

// ModuleError classifies a gateway failure for the HTTP layer.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidParams(message string, data interface{}) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message, Data: data}
}

// invalidParamGroup is every engine sentinel that signals bad call input.
var invalidParamGroup = []error{
	settlement.ErrZeroAddress,
	settlement.ErrInvalidAmount,
	settlement.ErrBonusOutOfRange,
	settlement.ErrLengthMismatch,
	settlement.ErrEmptyBatch,
	settlement.ErrBatchTooLarge,
	settlement.ErrOrderMismatch,
	risk.ErrZeroAddress,
	risk.ErrNegativeValue,
	risk.ErrEmptyBatch,
	risk.ErrBatchTooLarge,
	ledger.ErrInvalidAmount,
	ledger.ErrZeroAddress,
	ledger.ErrDuplicateOrder,
	ledger.ErrRepayExceedsDebt,
	access.ErrUnknownRole,
	access.ErrZeroAddress,
	viewcache.ErrZeroAddress,
	registry.ErrInvalidKey,
	params.ErrThresholdOutOfRange,
	params.ErrMinHealthBelowThreshold,
	params.ErrZeroRecipient,
	params.ErrRateSum,
	params.ErrCloseFactorOutOfRange,
	params.ErrNegativeFloor,
	payout.ErrNegativeAmount,
}

// unauthorizedGroup is every engine sentinel that signals a caller without
// the required role or identity.
var unauthorizedGroup = []error{
	settlement.ErrUnauthorized,
	settlement.ErrUntrustedCaller,
	access.ErrUnauthorized,
	registry.ErrUnauthorized,
	viewcache.ErrUnauthorized,
}

// notFoundGroup maps to 404 while keeping the invalid-params code, matching
// how lookups of absent records are reported elsewhere in the API.
var notFoundGroup = []error{
	ledger.ErrUnknownOrder,
	ledger.ErrUnknownReceipt,
	registry.ErrUnregisteredModule,
}

// conflictGroup covers calls that are well-formed but rejected by the
// current position or policy state.
var conflictGroup = []error{
	settlement.ErrNotLiquidatable,
	settlement.ErrAlreadySettled,
	settlement.ErrNothingToLiquidate,
	settlement.ErrNoCollateral,
	settlement.ErrPolicyUnresolved,
	ledger.ErrOrderClosed,
	ledger.ErrInsufficientDebt,
	ledger.ErrInsufficientCollateral,
	payout.ErrPolicyExists,
	payout.ErrPolicyNotConfigured,
	oracle.ErrNoFreshQuote,
}

func matchesAny(err error, group []error) bool {
	for _, sentinel := range group {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// classify maps an engine error onto transport status and JSON-RPC code.
func classify(err error) *ModuleError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, common.ErrModulePaused):
		return &ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeModulePaused, Message: err.Error()}
	case matchesAny(err, unauthorizedGroup):
		return &ModuleError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: err.Error()}
	case matchesAny(err, invalidParamGroup):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
	case matchesAny(err, notFoundGroup):
		return &ModuleError{HTTPStatus: http.StatusNotFound, Code: codeInvalidParams, Message: err.Error()}
	case matchesAny(err, conflictGroup):
		return &ModuleError{HTTPStatus: http.StatusConflict, Code: codeServerError, Message: err.Error()}
	default:
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
}

func parseAddress(field, raw string) (crypto.Address, *ModuleError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, invalidParams(field+" is required", nil)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, invalidParams("invalid "+field, err.Error())
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, *ModuleError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams(field+" is required", nil)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams("invalid "+field, raw)
	}
	return amount, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

package rpc

import (
	"net/http"
)

func (s *Server) handleLedgerGetOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.ledger.GetOrder(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleLedgerGetDebt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.ledger.GetDebt(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleLedgerGetCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.ledger.GetCollateral(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleLedgerCollateralAssets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.ledger.CollateralAssets(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

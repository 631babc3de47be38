package rpc

import (
	"net/http"
)

func (s *Server) handlePayoutGetPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) > 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "too many parameters", nil)
		return codeInvalidParams
	}
	result, modErr := s.payout.GetPolicy()
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handlePayoutUpdateConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.payout.UpdateConfig(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handlePayoutUpdateRecipients(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.payout.UpdateRecipients(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handlePayoutUpdateRates(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.payout.UpdateRates(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

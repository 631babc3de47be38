package rpc

import (
	"net/http"
)

func (s *Server) handleSettlementRepayAndSettle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.settlement.RepayAndSettle(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleSettlementSettleOrLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.settlement.SettleOrLiquidate(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleSettlementLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.settlement.Liquidate(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleSettlementBatchLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.settlement.BatchLiquidate(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleSettlementPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.settlement.Pause(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleSettlementResume(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.settlement.Resume(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleSettlementAuthorizeUpgrade(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.settlement.AuthorizeUpgrade(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

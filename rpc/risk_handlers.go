package rpc

import (
	"net/http"
)

func (s *Server) handleRiskIsLiquidatable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.IsLiquidatable(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskScore(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.RiskScore(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskAssessment(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.Assessment(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskBatchIsLiquidatable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.BatchIsLiquidatable(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskBatchRiskScores(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.BatchRiskScores(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskParameters(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) > 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "too many parameters", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.Parameters()
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskUpdateLiquidationThreshold(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.UpdateLiquidationThreshold(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskUpdateMinHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.UpdateMinHealthFactor(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRiskRefreshModuleCache(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.risk.RefreshModuleCache(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

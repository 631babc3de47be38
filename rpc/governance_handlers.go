package rpc

import (
	"net/http"
)

func (s *Server) handleRegistryResolve(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.registry.Resolve(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.registry.Register(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleAccessGrantRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.access.GrantRole(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleAccessRevokeRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.access.RevokeRole(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleAccessHasRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.access.HasRole(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleViewCacheSnapshot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.viewCache.Snapshot(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

func (s *Server) handleViewCacheInvalidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) int {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	result, modErr := s.viewCache.Invalidate(req.Params[0])
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return moduleErrCode(modErr)
	}
	writeResult(w, req.ID, result)
	return 0
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/services"
	"github.com/soochol/chatflow/internal/suggest"
	"github.com/soochol/chatflow/internal/validator"
)

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) createFlow(w http.ResponseWriter, r *http.Request) {
	var in services.FlowInput
	if !decode(w, r, &in) {
		return
	}
	f, err := s.flowSvc.Create(r.Context(), tenant(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	status := chatflow.FlowStatus(r.URL.Query().Get("status"))
	flows, err := s.flowSvc.List(r.Context(), tenant(r), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if flows == nil {
		flows = []*chatflow.Flow{}
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flowSvc.Get(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) updateFlowMeta(w http.ResponseWriter, r *http.Request) {
	var patch services.MetaPatch
	if !decode(w, r, &patch) {
		return
	}
	f, err := s.flowSvc.UpdateMeta(r.Context(), tenant(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) replaceGraph(w http.ResponseWriter, r *http.Request) {
	var g chatflow.Graph
	if !decode(w, r, &g) {
		return
	}
	f, err := s.flowSvc.ReplaceGraph(r.Context(), tenant(r), chi.URLParam(r, "id"), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) deleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flowSvc.Delete(r.Context(), tenant(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addNodeRequest struct {
	Type     chatflow.NodeType `json:"type"`
	Position chatflow.Position `json:"position"`
	Data     map[string]any    `json:"data,omitempty"`
}

func (s *Server) addNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !decode(w, r, &req) {
		return
	}
	node, err := s.flowSvc.AddNodeWithData(r.Context(), tenant(r), chi.URLParam(r, "id"), req.Type, req.Position, req.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

type updateNodeRequest struct {
	Position *chatflow.Position `json:"position,omitempty"`
	Data     map[string]any     `json:"data,omitempty"`
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	var req updateNodeRequest
	if !decode(w, r, &req) {
		return
	}
	node, err := s.flowSvc.EditNode(r.Context(), tenant(r), chi.URLParam(r, "id"), chi.URLParam(r, "nodeId"),
		services.NodeEdit{Position: req.Position, Data: req.Data})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) {
	err := s.flowSvc.RemoveNode(r.Context(), tenant(r), chi.URLParam(r, "id"), chi.URLParam(r, "nodeId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req services.ConnectRequest
	if !decode(w, r, &req) {
		return
	}
	edge, err := s.flowSvc.Connect(r.Context(), tenant(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	err := s.flowSvc.Disconnect(r.Context(), tenant(r), chi.URLParam(r, "id"), chi.URLParam(r, "edgeId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validationResponse struct {
	Valid  bool              `json:"valid"`
	Issues []validator.Issue `json:"issues"`
}

func (s *Server) validateFlow(w http.ResponseWriter, r *http.Request) {
	issues, err := s.flowSvc.Validate(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if issues == nil {
		issues = []validator.Issue{}
	}
	writeJSON(w, http.StatusOK, validationResponse{Valid: !validator.HasErrors(issues), Issues: issues})
}

type publishResponse struct {
	Flow     *chatflow.Flow    `json:"flow"`
	Warnings []validator.Issue `json:"warnings"`
}

func (s *Server) publishFlow(w http.ResponseWriter, r *http.Request) {
	f, warnings, err := s.flowSvc.Publish(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if warnings == nil {
		warnings = []validator.Issue{}
	}
	writeJSON(w, http.StatusOK, publishResponse{Flow: f, Warnings: warnings})
}

func (s *Server) unpublishFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flowSvc.Unpublish(r.Context(), tenant(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) listNodeTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chatflow.Descriptors())
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	parent := chatflow.NodeType(r.URL.Query().Get("parent"))
	out, err := suggest.Suggest(parent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/runtime"
)

type turnResponse struct {
	*runtime.Turn
	Error *turnError `json:"error,omitempty"`
}

type turnError struct {
	Kind   chatflow.ExecutionErrorKind `json:"kind"`
	NodeID string                      `json:"nodeId"`
	Detail string                      `json:"detail"`
}

// postMessage feeds one inbound message for the caller's tenant into the
// executor. Execution failures still return 200 with the failed
// conversation and the error kind.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var in chatflow.Inbound
	if !decode(w, r, &in) {
		return
	}
	tid := tenant(r)
	if in.TenantID != "" && in.TenantID != tid {
		http.Error(w, "tenant mismatch", http.StatusForbidden)
		return
	}
	in.TenantID = tid
	if in.ContactID == "" {
		http.Error(w, "contactId is required", http.StatusBadRequest)
		return
	}

	turn, err := s.executor.HandleMessage(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := turnResponse{Turn: turn}
	if f := turn.Failure; f != nil {
		resp.Error = &turnError{Kind: f.Kind, NodeID: f.NodeID, Detail: f.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.executor.Conversation(r.Context(), tenant(r), chi.URLParam(r, "contactId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) runtimeStats(w http.ResponseWriter, r *http.Request) {
	if s.limiter == nil {
		http.Error(w, "limiter not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.limiter.Stats())
}

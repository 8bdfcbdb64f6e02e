package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	appConversation "github.com/trade-hub/trade-hub/internal/application/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

type appendMessageRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type setProposalRequest struct {
	Proposal *proposal.Proposal `json:"proposal"`
}

type lockRequest struct {
	Reason string `json:"reason"`
}

func otherParam(r *http.Request) string {
	raw := chi.URLParam(r, "other")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	items, err := s.conversationSvc.List(r.Context(), partyFromContext(r.Context()), limit, offset)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	if items == nil {
		items = []*conversation.Conversation{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": items})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.conversationSvc.Get(r.Context(), partyFromContext(r.Context()), otherParam(r))
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.conversationSvc.Delete(r.Context(), partyFromContext(r.Context()), otherParam(r))
	if err != nil {
		respondFault(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "conversation deleted"})
}

func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	msg, err := s.conversationSvc.Append(r.Context(), appConversation.AppendInput{
		From:    partyFromContext(r.Context()),
		To:      otherParam(r),
		Kind:    req.Kind,
		Payload: req.Payload,
	})
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) getTradeProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.conversationSvc.GetProposal(r.Context(), partyFromContext(r.Context()), otherParam(r))
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"lastTradeProposal": p})
}

func (s *Server) setTradeProposal(w http.ResponseWriter, r *http.Request) {
	var req setProposalRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Proposal == nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "proposal is required")
		return
	}
	res, err := s.conversationSvc.Propose(r.Context(), appConversation.ProposeInput{
		From:     partyFromContext(r.Context()),
		To:       otherParam(r),
		Proposal: *req.Proposal,
	})
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"lastTradeProposal": res.Proposal,
		"message":           res.Message,
		"outcome":           res.Outcome,
	})
}

func (s *Server) lockConversation(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	reason, err := conversation.ParseLockReason(req.Reason)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.lockSvc.Lock(r.Context(), partyFromContext(r.Context()), otherParam(r), reason)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// rejectTradeProposal closes the negotiation. The live proposal is left as it was.
func (s *Server) rejectTradeProposal(w http.ResponseWriter, r *http.Request) {
	res, err := s.lockSvc.Lock(r.Context(), partyFromContext(r.Context()), otherParam(r), conversation.LockReasonDeleted)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

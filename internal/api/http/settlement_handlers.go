package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	appSettlement "github.com/trade-hub/trade-hub/internal/application/settlement"
	"github.com/trade-hub/trade-hub/internal/domain/asset"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
	"github.com/trade-hub/trade-hub/internal/domain/settlement"
)

type executeTradeRequest struct {
	ConversationID string `json:"conversationId"`
}

type acceptProposalRequest struct {
	ProposalID         string      `json:"proposalId,omitempty"`
	LiveProposerAssets []asset.Ref `json:"liveProposerAssets,omitempty"`
	LiveReceiverAssets []asset.Ref `json:"liveReceiverAssets,omitempty"`
}

func (s *Server) executeTrade(w http.ResponseWriter, r *http.Request) {
	var req executeTradeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid conversationId")
		return
	}
	rec, err := s.settlementSvc.Execute(r.Context(), partyFromContext(r.Context()), id)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) acceptTradeProposal(w http.ResponseWriter, r *http.Request) {
	var req acceptProposalRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	rec, err := s.settlementSvc.AcceptAndSettle(r.Context(), appSettlement.AcceptInput{
		Actor:              partyFromContext(r.Context()),
		Other:              otherParam(r),
		ProposalID:         req.ProposalID,
		LiveProposerAssets: req.LiveProposerAssets,
		LiveReceiverAssets: req.LiveReceiverAssets,
	})
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) getSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "settlementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid settlementId")
		return
	}
	rec, err := s.settlementSvc.Get(r.Context(), partyFromContext(r.Context()), id)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	s.respondSettlement(w, r, rec)
}

// getConversationSettlement returns the record of the trade that closed the conversation.
func (s *Server) getConversationSettlement(w http.ResponseWriter, r *http.Request) {
	party := partyFromContext(r.Context())
	c, err := s.conversationSvc.Get(r.Context(), party, otherParam(r))
	if err != nil {
		respondFault(w, r, err)
		return
	}
	if !c.Exists() {
		respondFault(w, r, fault.NotFound("conversation not found"))
		return
	}
	rec, err := s.settlementSvc.ForConversation(r.Context(), party, c.ID)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	s.respondSettlement(w, r, rec)
}

func (s *Server) respondSettlement(w http.ResponseWriter, r *http.Request, rec *settlement.Record) {
	verified, err := s.settlementSvc.VerifyRecord(rec)
	if err != nil {
		respondFault(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settlement": rec,
		"verified":   verified,
	})
}

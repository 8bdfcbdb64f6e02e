package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"time"
)

type signatureLeg struct {
	Party  string   `json:"party"`
	Assets []string `json:"assets"`
}

type signaturePayload struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	ProposalID     string       `json:"proposalId"`
	Proposer       signatureLeg `json:"proposer"`
	Receiver       signatureLeg `json:"receiver"`
	Status         string       `json:"status"`
	CreatedAt      string       `json:"createdAt"`
}

func buildSignaturePayload(r *Record) signaturePayload {
	return signaturePayload{
		ID:             r.ID.String(),
		ConversationID: r.ConversationID.String(),
		ProposalID:     r.ProposalID,
		Proposer:       signatureLegOf(r.Proposer),
		Receiver:       signatureLegOf(r.Receiver),
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func signatureLegOf(leg LegSnapshot) signatureLeg {
	out := signatureLeg{Party: leg.Party, Assets: make([]string, 0, len(leg.Assets))}
	for _, a := range leg.Assets {
		out.Assets = append(out.Assets, a.Ref.String())
	}
	return out
}

// Sign generates an HMAC signature over the identity fields of the record.
func Sign(r *Record, key []byte) ([]byte, error) {
	data, err := json.Marshal(buildSignaturePayload(r))
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifySignature checks the record signature against key.
func VerifySignature(r *Record, key []byte) (bool, error) {
	if len(r.Signature) == 0 {
		return false, nil
	}
	expected, err := Sign(r, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, r.Signature), nil
}

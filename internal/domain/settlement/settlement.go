package settlement

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
	"github.com/trade-hub/trade-hub/internal/domain/conversation"
	"github.com/trade-hub/trade-hub/internal/domain/fault"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

// Status is the terminal state recorded for a settlement.
type Status string

const StatusAccepted Status = "accepted"

// AssetSnapshot freezes what an asset looked like when it changed hands.
type AssetSnapshot struct {
	asset.Ref
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// LegSnapshot is one side of a settled trade.
type LegSnapshot struct {
	Party  string          `json:"party"`
	Assets []AssetSnapshot `json:"assets"`
}

// Record is the immutable audit entry of an executed trade.
type Record struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversationId"`
	ProposalID     string      `json:"proposalId"`
	Proposer       LegSnapshot `json:"proposer"`
	Receiver       LegSnapshot `json:"receiver"`
	Status         Status      `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	Signature      []byte      `json:"signature,omitempty"`
}

// CheckProposal verifies the first two preconditions: a live proposal that both sides accepted.
func CheckProposal(c *conversation.Conversation) (*proposal.Proposal, error) {
	p := c.LastTradeProposal
	if p == nil {
		return nil, fault.Validation("no trade proposal exists for this conversation")
	}
	if !proposal.IsSettled(p) {
		return nil, fault.Validation("proposal not accepted by both sides")
	}
	return p, nil
}

// CheckAssets verifies that every asset exists, is tradable and is owned by its declared party.
// The first violation is returned, proposer leg first.
func CheckAssets(p *proposal.Proposal, assets map[asset.Ref]*asset.Asset) error {
	legs := []proposal.Side{p.Proposer, p.Receiver}
	for _, leg := range legs {
		for _, ref := range leg.Assets {
			a, ok := assets[ref]
			if !ok || a == nil {
				return fault.Ownership(ref, "asset %s does not exist", ref)
			}
			if !a.IsTradable {
				return fault.Ownership(ref, "asset %s is not tradable", ref)
			}
			if a.Owner != leg.Party {
				return fault.Ownership(ref, "asset %s is owned by %s, not %s", ref, a.Owner, leg.Party)
			}
		}
	}
	return nil
}

// NewRecord snapshots both legs of a settled proposal.
func NewRecord(conversationID uuid.UUID, p *proposal.Proposal, assets map[asset.Ref]*asset.Asset, now time.Time) *Record {
	return &Record{
		ID:             uuid.New(),
		ConversationID: conversationID,
		ProposalID:     p.ID,
		Proposer:       snapshotLeg(p.Proposer, assets),
		Receiver:       snapshotLeg(p.Receiver, assets),
		Status:         StatusAccepted,
		CreatedAt:      now,
	}
}

func snapshotLeg(side proposal.Side, assets map[asset.Ref]*asset.Asset) LegSnapshot {
	leg := LegSnapshot{Party: side.Party, Assets: make([]AssetSnapshot, 0, len(side.Assets))}
	for _, ref := range side.Assets {
		snap := AssetSnapshot{Ref: ref}
		if a := assets[ref]; a != nil {
			snap.Name = a.Name
			snap.ImageURL = a.ImageURL
		}
		leg.Assets = append(leg.Assets, snap)
	}
	return leg
}

// Transfer is one ownership reassignment.
type Transfer struct {
	Ref  asset.Ref
	From string
	To   string
}

// Transfers lists the owner swaps of a settled proposal in lock order.
func Transfers(p *proposal.Proposal) []Transfer {
	out := make([]Transfer, 0, len(p.Proposer.Assets)+len(p.Receiver.Assets))
	for _, ref := range p.Proposer.Assets {
		out = append(out, Transfer{Ref: ref, From: p.Proposer.Party, To: p.Receiver.Party})
	}
	for _, ref := range p.Receiver.Assets {
		out = append(out, Transfer{Ref: ref, From: p.Receiver.Party, To: p.Proposer.Party})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Less(out[j].Ref) })
	return out
}

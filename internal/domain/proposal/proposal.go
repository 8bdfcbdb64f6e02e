package proposal

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
)

var (
	ErrNotReceiver    = errors.New("only the receiver can accept a proposal")
	ErrNotParticipant = errors.New("party is not a side of this proposal")
	ErrSides          = errors.New("proposal sides must be the two conversation parties")
	ErrEmptyTrade     = errors.New("proposal must include at least one asset")
	ErrDuplicateAsset = errors.New("an asset may appear only once in a proposal")
)

// Side is one party's contribution to a trade.
type Side struct {
	Party    string      `json:"party"`
	Assets   []asset.Ref `json:"assets"`
	Accepted bool        `json:"accepted"`
}

// Proposal is a two-sided offer. The proposer authored the current terms.
type Proposal struct {
	ID        string    `json:"id"`
	Proposer  Side      `json:"proposer"`
	Receiver  Side      `json:"receiver"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsSettled reports whether both sides accepted.
func IsSettled(p *Proposal) bool {
	return p != nil && p.Proposer.Accepted && p.Receiver.Accepted
}

// IsModifiedByReceiver compares the receiving client's live selection for both legs against the
// persisted proposal. Order and duplicates are ignored.
func IsModifiedByReceiver(p *Proposal, liveProposerAssets, liveReceiverAssets []asset.Ref) bool {
	if p == nil {
		return false
	}
	return !SameAssets(p.Proposer.Assets, liveProposerAssets) || !SameAssets(p.Receiver.Assets, liveReceiverAssets)
}

// SameAssets compares two asset lists as sets.
func SameAssets(a, b []asset.Ref) bool {
	left := toSet(a)
	right := toSet(b)
	if len(left) != len(right) {
		return false
	}
	for ref := range left {
		if _, ok := right[ref]; !ok {
			return false
		}
	}
	return true
}

func toSet(refs []asset.Ref) map[asset.Ref]struct{} {
	out := make(map[asset.Ref]struct{}, len(refs))
	for _, r := range refs {
		out[r] = struct{}{}
	}
	return out
}

// Accept marks the receiver's side as accepted. The proposer accepted by proposing.
func Accept(p *Proposal, party string) (*Proposal, error) {
	switch party {
	case p.Receiver.Party:
	case p.Proposer.Party:
		return nil, ErrNotReceiver
	default:
		return nil, ErrNotParticipant
	}
	out := p.Clone()
	out.Receiver.Accepted = true
	out.Proposer.Accepted = true
	return out, nil
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	out := *p
	out.Proposer.Assets = append([]asset.Ref(nil), p.Proposer.Assets...)
	out.Receiver.Assets = append([]asset.Ref(nil), p.Receiver.Assets...)
	return &out
}

// Refs lists every asset on both legs, proposer first.
func (p *Proposal) Refs() []asset.Ref {
	out := make([]asset.Ref, 0, len(p.Proposer.Assets)+len(p.Receiver.Assets))
	out = append(out, p.Proposer.Assets...)
	return append(out, p.Receiver.Assets...)
}

// Validate checks the shape of a proposal.
func (p *Proposal) Validate() error {
	if strings.TrimSpace(p.Proposer.Party) == "" || strings.TrimSpace(p.Receiver.Party) == "" {
		return ErrSides
	}
	if p.Proposer.Party == p.Receiver.Party {
		return ErrSides
	}
	refs := p.Refs()
	if len(refs) == 0 {
		return ErrEmptyTrade
	}
	seen := make(map[asset.Ref]struct{}, len(refs))
	for _, r := range refs {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, ok := seen[r]; ok {
			return ErrDuplicateAsset
		}
		seen[r] = struct{}{}
	}
	return nil
}

// Outcome describes how a submitted proposal changed the live slot.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeEdited    Outcome = "edited"
	OutcomeCountered Outcome = "countered"
	OutcomeAccepted  Outcome = "accepted"
	OutcomeWithdrawn Outcome = "withdrawn"
	OutcomeUnchanged Outcome = "unchanged"
)

// Merge folds a submitted proposal into the live slot of a conversation.
//
// Legs are matched by party identity, so a client cannot reassign authorship by swapping
// positions. The live proposer editing keeps the proposal id and proposer. The live receiver
// resubmitting identical legs updates only its acceptance flag. The live receiver submitting
// different legs is a counter-offer that supersedes the slot with the author as proposer.
func Merge(live *Proposal, submitted Proposal, author, counterparty string, now time.Time) (*Proposal, Outcome, error) {
	authorSide, otherSide, err := orient(submitted, author, counterparty)
	if err != nil {
		return nil, "", err
	}

	fresh := func(id string) *Proposal {
		if id == "" {
			id = uuid.NewString()
		}
		return &Proposal{
			ID:        id,
			Proposer:  Side{Party: author, Assets: dedupe(authorSide.Assets), Accepted: true},
			Receiver:  Side{Party: counterparty, Assets: dedupe(otherSide.Assets), Accepted: false},
			CreatedAt: now,
		}
	}

	var (
		out     *Proposal
		outcome Outcome
	)
	switch {
	case live == nil:
		out, outcome = fresh(strings.TrimSpace(submitted.ID)), OutcomeCreated
	case author == live.Proposer.Party:
		out = fresh(live.ID)
		out.CreatedAt = live.CreatedAt
		outcome = OutcomeEdited
	case author == live.Receiver.Party:
		if SameAssets(live.Proposer.Assets, otherSide.Assets) && SameAssets(live.Receiver.Assets, authorSide.Assets) {
			out = live.Clone()
			out.Receiver.Accepted = authorSide.Accepted
			switch {
			case authorSide.Accepted == live.Receiver.Accepted:
				return out, OutcomeUnchanged, nil
			case authorSide.Accepted:
				return out, OutcomeAccepted, nil
			default:
				return out, OutcomeWithdrawn, nil
			}
		}
		id := strings.TrimSpace(submitted.ID)
		if id == live.ID {
			id = ""
		}
		out, outcome = fresh(id), OutcomeCountered
	default:
		return nil, "", ErrNotParticipant
	}

	if err := out.Validate(); err != nil {
		return nil, "", err
	}
	return out, outcome, nil
}

func orient(p Proposal, author, counterparty string) (Side, Side, error) {
	switch {
	case p.Proposer.Party == author && p.Receiver.Party == counterparty:
		return p.Proposer, p.Receiver, nil
	case p.Receiver.Party == author && p.Proposer.Party == counterparty:
		return p.Receiver, p.Proposer, nil
	default:
		return Side{}, Side{}, ErrSides
	}
}

func dedupe(refs []asset.Ref) []asset.Ref {
	out := make([]asset.Ref, 0, len(refs))
	seen := make(map[asset.Ref]struct{}, len(refs))
	for _, r := range refs {
		r.Kind = strings.TrimSpace(r.Kind)
		r.ID = strings.TrimSpace(r.ID)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

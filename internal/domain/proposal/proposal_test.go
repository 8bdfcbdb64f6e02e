package proposal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
)

var (
	card1 = asset.Ref{Kind: "card", ID: "1"}
	card2 = asset.Ref{Kind: "card", ID: "2"}
	card3 = asset.Ref{Kind: "card", ID: "3"}
)

func offer(proposer string, give []asset.Ref, receiver string, want []asset.Ref) Proposal {
	return Proposal{
		Proposer: Side{Party: proposer, Assets: give},
		Receiver: Side{Party: receiver, Assets: want},
	}
}

func TestMergeCreatesProposal(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	out, outcome, err := Merge(nil, offer("alice", []asset.Ref{card1, card1}, "bob", []asset.Ref{card2}), "alice", "bob", now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "alice", out.Proposer.Party)
	assert.True(t, out.Proposer.Accepted)
	assert.False(t, out.Receiver.Accepted)
	assert.Equal(t, []asset.Ref{card1}, out.Proposer.Assets, "duplicates collapse")
	assert.Equal(t, now, out.CreatedAt)
}

func TestMergeKeepsClientID(t *testing.T) {
	submitted := offer("alice", []asset.Ref{card1}, "bob", nil)
	submitted.ID = "client-id"
	out, _, err := Merge(nil, submitted, "alice", "bob", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "client-id", out.ID)
}

func TestMergeProposerEditKeepsIdentity(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	live, _, err := Merge(nil, offer("alice", []asset.Ref{card1}, "bob", []asset.Ref{card2}), "alice", "bob", created)
	require.NoError(t, err)

	edited, outcome, err := Merge(live, offer("alice", []asset.Ref{card1, card3}, "bob", []asset.Ref{card2}), "alice", "bob", created.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, OutcomeEdited, outcome)
	assert.Equal(t, live.ID, edited.ID)
	assert.Equal(t, created, edited.CreatedAt)
	assert.Equal(t, []asset.Ref{card1, card3}, edited.Proposer.Assets)
	assert.False(t, edited.Receiver.Accepted)
}

func TestMergeReceiverResubmission(t *testing.T) {
	live, _, err := Merge(nil, offer("alice", []asset.Ref{card1}, "bob", []asset.Ref{card2}), "alice", "bob", time.Now())
	require.NoError(t, err)

	tests := []struct {
		name     string
		accepted bool
		live     *Proposal
		want     Outcome
	}{
		{name: "accept", accepted: true, live: live, want: OutcomeAccepted},
		{name: "no change", accepted: false, live: live, want: OutcomeUnchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Bob writes the same legs from his own point of view.
			submitted := Proposal{
				Proposer: Side{Party: "bob", Assets: []asset.Ref{card2}, Accepted: tt.accepted},
				Receiver: Side{Party: "alice", Assets: []asset.Ref{card1}},
			}
			out, outcome, err := Merge(tt.live, submitted, "bob", "alice", time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			assert.Equal(t, live.ID, out.ID)
			assert.Equal(t, "alice", out.Proposer.Party, "authorship is kept")
			assert.Equal(t, tt.accepted, out.Receiver.Accepted)
		})
	}

	t.Run("withdraw", func(t *testing.T) {
		accepted := live.Clone()
		accepted.Receiver.Accepted = true
		submitted := offer("alice", []asset.Ref{card1}, "bob", []asset.Ref{card2})
		out, outcome, err := Merge(accepted, submitted, "bob", "alice", time.Now())
		require.NoError(t, err)
		assert.Equal(t, OutcomeWithdrawn, outcome)
		assert.False(t, out.Receiver.Accepted)
	})
}

func TestMergeCounterOffer(t *testing.T) {
	live, _, err := Merge(nil, offer("alice", []asset.Ref{card1}, "bob", []asset.Ref{card2}), "alice", "bob", time.Now())
	require.NoError(t, err)

	submitted := offer("bob", []asset.Ref{card2}, "alice", []asset.Ref{card1, card3})
	submitted.ID = live.ID
	out, outcome, err := Merge(live, submitted, "bob", "alice", time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCountered, outcome)
	assert.NotEqual(t, live.ID, out.ID)
	assert.Equal(t, "bob", out.Proposer.Party)
	assert.True(t, out.Proposer.Accepted)
	assert.Equal(t, "alice", out.Receiver.Party)
	assert.False(t, out.Receiver.Accepted)
}

func TestMergeRejectsInvalidSubmissions(t *testing.T) {
	live, _, err := Merge(nil, offer("alice", []asset.Ref{card1}, "bob", nil), "alice", "bob", time.Now())
	require.NoError(t, err)

	tests := []struct {
		name      string
		live      *Proposal
		submitted Proposal
		author    string
		other     string
		wantErr   error
	}{
		{name: "foreign sides", submitted: offer("carol", []asset.Ref{card1}, "dave", nil), author: "alice", other: "bob", wantErr: ErrSides},
		{name: "empty trade", submitted: offer("alice", nil, "bob", nil), author: "alice", other: "bob", wantErr: ErrEmptyTrade},
		{name: "asset on both legs", submitted: offer("alice", []asset.Ref{card1}, "bob", []asset.Ref{card1}), author: "alice", other: "bob", wantErr: ErrDuplicateAsset},
		{name: "invalid ref", submitted: offer("alice", []asset.Ref{{Kind: "card"}}, "bob", nil), author: "alice", other: "bob", wantErr: asset.ErrInvalidRef},
		{name: "outsider", live: live, submitted: offer("carol", []asset.Ref{card2}, "bob", nil), author: "carol", other: "bob", wantErr: ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Merge(tt.live, tt.submitted, tt.author, tt.other, time.Now())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAccept(t *testing.T) {
	p := &Proposal{
		ID:       "p1",
		Proposer: Side{Party: "alice", Assets: []asset.Ref{card1}, Accepted: true},
		Receiver: Side{Party: "bob", Assets: []asset.Ref{card2}},
	}

	out, err := Accept(p, "bob")
	require.NoError(t, err)
	assert.True(t, IsSettled(out))
	assert.False(t, p.Receiver.Accepted, "input is not mutated")

	_, err = Accept(p, "alice")
	assert.ErrorIs(t, err, ErrNotReceiver)
	_, err = Accept(p, "carol")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestIsModifiedByReceiver(t *testing.T) {
	p := &Proposal{
		Proposer: Side{Party: "alice", Assets: []asset.Ref{card1, card3}},
		Receiver: Side{Party: "bob", Assets: []asset.Ref{card2}},
	}
	tests := []struct {
		name     string
		proposer []asset.Ref
		receiver []asset.Ref
		want     bool
	}{
		{name: "same selection", proposer: []asset.Ref{card1, card3}, receiver: []asset.Ref{card2}, want: false},
		{name: "order ignored", proposer: []asset.Ref{card3, card1}, receiver: []asset.Ref{card2}, want: false},
		{name: "duplicates ignored", proposer: []asset.Ref{card1, card3, card1}, receiver: []asset.Ref{card2}, want: false},
		{name: "proposer leg changed", proposer: []asset.Ref{card1}, receiver: []asset.Ref{card2}, want: true},
		{name: "receiver leg changed", proposer: []asset.Ref{card1, card3}, receiver: nil, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsModifiedByReceiver(p, tt.proposer, tt.receiver))
		})
	}
	assert.False(t, IsModifiedByReceiver(nil, nil, nil))
}

func TestIsSettled(t *testing.T) {
	assert.False(t, IsSettled(nil))
	assert.False(t, IsSettled(&Proposal{Proposer: Side{Accepted: true}}))
	assert.True(t, IsSettled(&Proposal{Proposer: Side{Accepted: true}, Receiver: Side{Accepted: true}}))
}

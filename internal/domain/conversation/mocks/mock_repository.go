package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/trade-hub/trade-hub/internal/domain/conversation"
)

// MockRepository is a mock implementation of conversation.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindByPair(ctx context.Context, pair conversation.Pair) (*conversation.Conversation, error) {
	args := m.Called(ctx, pair)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Conversation), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Conversation), args.Error(1)
}

func (m *MockRepository) ListByParty(ctx context.Context, party string, limit, offset int) ([]*conversation.Conversation, error) {
	args := m.Called(ctx, party, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*conversation.Conversation), args.Error(1)
}

// WithinTx returns the configured error without running fn.
func (m *MockRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx conversation.Tx) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

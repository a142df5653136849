package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockPayout struct {
	mock.Mock
}

func (m *mockPayout) Prepare(ctx context.Context, to string, lamports uint64) (*SignedTransfer, error) {
	args := m.Called(ctx, to, lamports)
	t, _ := args.Get(0).(*SignedTransfer)
	return t, args.Error(1)
}

func (m *mockPayout) Submit(ctx context.Context, t *SignedTransfer) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockPayout) Status(ctx context.Context, signature string, lastValidBlockHeight uint64) (TransferStatus, error) {
	args := m.Called(ctx, signature, lastValidBlockHeight)
	return args.Get(0).(TransferStatus), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) PutObject(ctx context.Context, key, contentType string, body []byte, metadata map[string]string) (string, error) {
	args := m.Called(ctx, key, contentType, body, metadata)
	return args.String(0), args.Error(1)
}

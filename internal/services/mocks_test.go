package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockIntentProvider struct {
	mock.Mock
}

func (m *MockIntentProvider) RawIntent(ctx context.Context, text string) ([]byte, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

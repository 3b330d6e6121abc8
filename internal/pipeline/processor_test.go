package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-gateway/internal/gateway"
	"github.com/tinywideclouds/go-push-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, p *push.Push) (*dispatch.Receipt, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.Receipt), args.Error(1)
}

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	p := push.ForApple(push.Content{Title: "Hello"}, push.ApplePushProps{DeviceToken: "tok"})

	t.Run("Sends through the gateway", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, p).Return(&dispatch.Receipt{ID: "r-1", Sent: true}, nil)

		err := pipeline.NewProcessor(sender, logger)(ctx, messagepipeline.Message{}, p)

		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("Transport errors are retried", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, p).Return(nil, errors.New("apns transport failed"))

		err := pipeline.NewProcessor(sender, logger)(ctx, messagepipeline.Message{}, p)
		assert.Error(t, err)
	})

	t.Run("Oversized payloads are acked", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, p).
			Return(nil, &push.PayloadTooLargeError{Provider: push.ProviderApple, Length: 5000, Limit: 4096})

		err := pipeline.NewProcessor(sender, logger)(ctx, messagepipeline.Message{}, p)
		assert.NoError(t, err)
	})

	t.Run("Unconfigured provider is acked", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything, p).Return(nil, gateway.ErrProviderUnavailable)

		err := pipeline.NewProcessor(sender, logger)(ctx, messagepipeline.Message{}, p)
		assert.NoError(t, err)
	})
}

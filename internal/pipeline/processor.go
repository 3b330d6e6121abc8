package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-push-gateway/internal/gateway"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Sender is the part of the gateway the processor needs.
type Sender interface {
	Send(ctx context.Context, p *push.Push) (*dispatch.Receipt, error)
}

// NewProcessor sends each decoded push through the gateway. Errors that a
// redelivery cannot fix are logged and acked; everything else is returned so
// the message is nacked and retried.
func NewProcessor(sender Sender, logger *slog.Logger) messagepipeline.StreamProcessor[push.Push] {
	return func(ctx context.Context, original messagepipeline.Message, p *push.Push) error {
		procLogger := logger.With(
			"provider", p.Provider().String(),
			"pubsub_msg_id", original.ID,
		)

		receipt, err := sender.Send(ctx, p)
		if err != nil {
			if !gateway.Retryable(err) {
				procLogger.Error("Dropping undeliverable push", "err", err)
				return nil
			}
			procLogger.Error("Push dispatch failed", "err", err)
			return err // Retryable
		}

		procLogger.Info("Push dispatched",
			"receipt_id", receipt.ID,
			"sent", receipt.Sent,
			"reason", receipt.Reason,
			"invalid_target", receipt.InvalidTarget,
		)
		return nil
	}
}

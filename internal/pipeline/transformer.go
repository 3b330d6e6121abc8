// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// PushTransformer is a dataflow Transformer that unmarshals and validates a
// raw message payload into a push.Push.
//
// push.Push decodes through push.New, so a message naming more than one
// provider is rejected here.
func PushTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.Push, bool, error) {
	var p push.Push

	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		// skip=true so the StreamingService can handle the Nack/DLQ logic.
		return nil, true, fmt.Errorf("failed to unmarshal push from message %s: %w", msg.ID, err)
	}

	return &p, false, nil
}

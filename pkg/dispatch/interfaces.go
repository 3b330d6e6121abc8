// Package dispatch defines the contracts shared by the provider dispatchers
// and the components that route pushes to them.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Receipt records the outcome of one delivery attempt.
type Receipt struct {
	ID         string    `json:"id" firestore:"id"`
	Provider   string    `json:"provider" firestore:"provider"`
	Target     string    `json:"target" firestore:"target"`
	MessageID  string    `json:"message_id,omitempty" firestore:"message_id,omitempty"`
	StatusCode int       `json:"status_code,omitempty" firestore:"status_code,omitempty"`
	Sent       bool      `json:"sent" firestore:"sent"`
	Reason     string    `json:"reason,omitempty" firestore:"reason,omitempty"`
	// InvalidTarget is set when the provider reported the token or
	// subscription as permanently unusable.
	InvalidTarget bool      `json:"invalid_target,omitempty" firestore:"invalid_target,omitempty"`
	CreatedAt     time.Time `json:"created_at" firestore:"created_at"`
}

// Dispatcher defines the contract for a component that can send a push
// to a specific provider (e.g., Apple's APNS, Google's FCM).
type Dispatcher interface {
	// Dispatch delivers the push. A provider rejection is reported through
	// the receipt; transport failures and oversized payloads are errors.
	Dispatch(ctx context.Context, p *push.Push) (*Receipt, error)
}

// ReceiptStore persists delivery receipts.
type ReceiptStore interface {
	Save(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	ListForTarget(ctx context.Context, target string, limit int) ([]*Receipt, error)
}

// ErrInvalidPush marks a push that can never be delivered as submitted, such
// as one routed to the wrong dispatcher or carrying malformed headers.
var ErrInvalidPush = errors.New("invalid push")

// ErrReceiptNotFound is returned by a ReceiptStore when no receipt has the requested id.
var ErrReceiptNotFound = errors.New("receipt not found")

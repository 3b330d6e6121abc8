package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
)

const receiptsCollection = "push_receipts"

// ReceiptStore implements dispatch.ReceiptStore using Google Cloud Firestore.
type ReceiptStore struct {
	client *firestore.Client
}

func NewReceiptStore(client *firestore.Client) *ReceiptStore {
	return &ReceiptStore{client: client}
}

// Save writes the receipt under its id: push_receipts/{id}
func (s *ReceiptStore) Save(ctx context.Context, r *dispatch.Receipt) error {
	if r.ID == "" {
		return fmt.Errorf("receipt has no id")
	}
	_, err := s.client.Collection(receiptsCollection).Doc(r.ID).Set(ctx, r)
	return err
}

func (s *ReceiptStore) Get(ctx context.Context, id string) (*dispatch.Receipt, error) {
	doc, err := s.client.Collection(receiptsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, dispatch.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore get failed: %w", err)
	}

	var r dispatch.Receipt
	if err := doc.DataTo(&r); err != nil {
		return nil, fmt.Errorf("corrupt receipt %s: %w", id, err)
	}
	return &r, nil
}

// ListForTarget returns the newest receipts for a device token, topic or
// subscription endpoint.
func (s *ReceiptStore) ListForTarget(ctx context.Context, target string, limit int) ([]*dispatch.Receipt, error) {
	iter := s.client.Collection(receiptsCollection).
		Where("target", "==", target).
		OrderBy("created_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	receipts := make([]*dispatch.Receipt, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var r dispatch.Receipt
		if err := doc.DataTo(&r); err != nil {
			// Usually safe to skip corrupt rows.
			continue
		}
		receipts = append(receipts, &r)
	}
	return receipts, nil
}

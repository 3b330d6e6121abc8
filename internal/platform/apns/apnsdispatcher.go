// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. com.tinywide.messenger)
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	Production   bool
}

// NewDispatcher creates a configured APNS dispatcher.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return newDispatcher(client, cfg.BundleID, logger), nil
}

func newDispatcher(client APNSClient, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// Dispatch sends one notification to the device token in the push's Apple
// properties. APNs HTTP/2 is unary, so there is no batching here.
func (d *Dispatcher) Dispatch(ctx context.Context, p *push.Push) (*dispatch.Receipt, error) {
	apple := p.Apple()
	if apple == nil {
		return nil, fmt.Errorf("%w: %s push sent to APNs dispatcher", dispatch.ErrInvalidPush, p.Provider())
	}
	if apple.DeviceToken == "" {
		return nil, fmt.Errorf("%w: missing apple device_token", dispatch.ErrInvalidPush)
	}

	// 1. Build Payload
	body, err := json.Marshal(buildPayload(p, apple))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal APNs payload: %w", err)
	}
	if err := push.CheckPayloadSize(push.ProviderApple, body); err != nil {
		return nil, err
	}

	// 2. Headers: typed properties first, caller supplied raw headers fill gaps.
	notification := &apns2.Notification{
		DeviceToken: apple.DeviceToken,
		Topic:       d.topic,
		Payload:     body,
	}
	headers := HeadersFromPush(p).merge(FilterHeaders(apple.RawHeaders))
	if err := applyHeaders(notification, headers); err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrInvalidPush, err)
	}

	// 3. Send (Synchronous HTTP/2)
	res, err := d.client.PushWithContext(ctx, notification)
	if err != nil {
		d.logger.Error("APNs transport failed", "token", apple.DeviceToken, "err", err)
		return nil, fmt.Errorf("apns transport failed: %w", err)
	}

	receipt := &dispatch.Receipt{
		Provider:   push.ProviderApple.String(),
		Target:     apple.DeviceToken,
		MessageID:  res.ApnsID,
		StatusCode: res.StatusCode,
		Sent:       res.Sent(),
	}
	if receipt.Sent {
		return receipt, nil
	}

	// 4. Handle Response Codes
	code, _ := ParseErrorCode(res.Reason)
	receipt.Reason = res.Reason
	receipt.InvalidTarget = code.InvalidToken()

	switch {
	case code == ErrorCodePayloadTooLarge:
		return receipt, &push.PayloadTooLargeError{
			Provider: push.ProviderApple,
			Length:   len(body),
			Limit:    push.ProviderApple.MaxPayloadSize(),
			Err:      errors.New(res.Reason),
		}
	case code.Retryable():
		d.logger.Warn("APNs temporarily rejected notification", "reason", code.String(), "status", res.StatusCode)
		return receipt, fmt.Errorf("apns rejected with retryable reason %s", code)
	case receipt.InvalidTarget:
		d.logger.Info("APNs reported dead device token", "token", apple.DeviceToken, "reason", code.String())
	default:
		// Configuration problems (TopicDisallowed, BadCertificate...) leave the token usable.
		d.logger.Warn("APNs rejected notification", "reason", code.String(), "status", res.StatusCode)
	}
	return receipt, nil
}

func buildPayload(p *push.Push, apple *push.ApplePushProps) *payload.Payload {
	builder := payload.NewPayload()
	if p.Title() != "" {
		builder.AlertTitle(p.Title())
	}
	if p.Body() != "" {
		builder.AlertBody(p.Body())
	}
	if apple.Sound != "" {
		builder.Sound(apple.Sound)
	}
	if apple.Badge != nil {
		builder.Badge(*apple.Badge)
	}
	if apple.Category != "" {
		builder.Category(apple.Category)
	}
	if apple.ThreadID != "" {
		builder.ThreadID(apple.ThreadID)
	}
	if apple.ContentAvailable {
		builder.ContentAvailable()
	}
	if apple.MutableContent {
		builder.MutableContent()
	}
	// Images are fetched by a notification service extension, which only
	// runs for mutable-content pushes.
	if img := p.ImageURI(); img != nil {
		builder.MutableContent().Custom("image_uri", img.String())
	}
	for k, v := range apple.Custom {
		builder.Custom(k, v)
	}
	return builder
}

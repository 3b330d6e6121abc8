package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

const defaultTTL = 60

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient webpush.HTTPClient
}

func NewDispatcher(cfg config.VapidConfig, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithClient(cfg, &http.Client{}, logger)
}

// NewDispatcherWithClient is NewDispatcher with a caller supplied HTTP client.
func NewDispatcherWithClient(cfg config.VapidConfig, client webpush.HTTPClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: client,
	}
}

type notificationPayload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, p *push.Push) (*dispatch.Receipt, error) {
	props := p.Web()
	if props == nil {
		return nil, fmt.Errorf("%w: %s push sent to Web dispatcher", dispatch.ErrInvalidPush, p.Provider())
	}
	sub := props.Subscription
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, fmt.Errorf("%w: incomplete web push subscription", dispatch.ErrInvalidPush)
	}

	// 1. Prepare Payload (Standard JSON structure)
	body := notificationPayload{Title: p.Title(), Body: p.Body()}
	if img := p.ImageURI(); img != nil {
		body.Image = img.String()
	}
	payloadBytes, err := json.Marshal(map[string]any{
		"notification": body,
		"data":         props.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := push.CheckPayloadSize(push.ProviderWeb, payloadBytes); err != nil {
		return nil, err
	}

	ttl := props.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	// 2. Send via webpush-go
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, s, &webpush.Options{
		Subscriber:      d.subscriber,
		VAPIDPublicKey:  d.publicKey,
		VAPIDPrivateKey: d.privateKey,
		TTL:             ttl,
		Urgency:         webpush.Urgency(props.Urgency),
		Topic:           props.Topic,
		HTTPClient:      d.httpClient,
	})
	if err != nil {
		// Transport error (DNS, Timeout) - retry, don't delete
		d.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
		return nil, fmt.Errorf("web push transport failed: %w", err)
	}
	defer resp.Body.Close()

	receipt := &dispatch.Receipt{
		Provider:   push.ProviderWeb.String(),
		Target:     sub.Endpoint,
		MessageID:  resp.Header.Get("Location"),
		StatusCode: resp.StatusCode,
	}

	// 3. Handle Response Codes
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusAccepted:
		receipt.Sent = true
	case http.StatusGone, http.StatusNotFound:
		// Subscription is dead, report for cleanup
		receipt.InvalidTarget = true
		receipt.Reason = http.StatusText(resp.StatusCode)
	case http.StatusRequestEntityTooLarge:
		return receipt, &push.PayloadTooLargeError{
			Provider: push.ProviderWeb,
			Length:   len(payloadBytes),
			Limit:    push.ProviderWeb.MaxPayloadSize(),
		}
	case http.StatusTooManyRequests:
		return receipt, fmt.Errorf("web push endpoint throttled delivery")
	default:
		d.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		receipt.Reason = http.StatusText(resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			return receipt, fmt.Errorf("web push endpoint returned %d", resp.StatusCode)
		}
	}
	return receipt, nil
}

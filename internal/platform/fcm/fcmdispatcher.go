// Package fcm delivers pushes through Firebase Cloud Messaging and owns the
// service-account authentication used to reach it.
package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

// NewDispatcher accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// NewMessagingClient builds a Firebase messaging client for the service
// account's project, authenticated by the given token source.
func NewMessagingClient(ctx context.Context, creds *ServiceAccountCredentials, ts oauth2.TokenSource) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: creds.Account().ProjectID}, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
	}
	return client, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, p *push.Push) (*dispatch.Receipt, error) {
	props := p.Firebase()
	if props == nil {
		return nil, fmt.Errorf("%w: %s push sent to FCM dispatcher", dispatch.ErrInvalidPush, p.Provider())
	}
	if props.Token == "" && props.Topic == "" && props.Condition == "" {
		return nil, fmt.Errorf("%w: firebase push needs a token, topic or condition", dispatch.ErrInvalidPush)
	}

	msg := buildMessage(p, props)
	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal FCM message: %w", err)
	}
	if err := push.CheckPayloadSize(push.ProviderFirebase, encoded); err != nil {
		return nil, err
	}

	receipt := &dispatch.Receipt{
		Provider: push.ProviderFirebase.String(),
		Target:   p.Target(),
	}

	messageID, err := d.client.Send(ctx, msg)
	if err != nil {
		// Fatal errors: the token is garbage or the message can never be accepted.
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
			d.logger.Warn("FCM rejected message (dropping)", "target", receipt.Target, "err", err)
			receipt.Reason = err.Error()
			receipt.InvalidTarget = props.Token != ""
			return receipt, nil
		}

		// Real network/auth failure -> Retry
		return nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	receipt.Sent = true
	receipt.MessageID = messageID
	return receipt, nil
}

func buildMessage(p *push.Push, props *push.FirebasePushProps) *messaging.Message {
	msg := &messaging.Message{
		Token:     props.Token,
		Topic:     props.Topic,
		Condition: props.Condition,
		Data:      props.Data,
	}

	if p.Title() != "" || p.Body() != "" || p.ImageURI() != nil {
		msg.Notification = &messaging.Notification{
			Title: p.Title(),
			Body:  p.Body(),
		}
		if img := p.ImageURI(); img != nil {
			msg.Notification.ImageURL = img.String()
		}
	}

	if props.Priority != "" || props.CollapseKey != "" || props.ChannelID != "" || props.TTLSeconds != nil {
		android := &messaging.AndroidConfig{
			Priority:    props.Priority,
			CollapseKey: props.CollapseKey,
		}
		if props.TTLSeconds != nil {
			ttl := time.Duration(*props.TTLSeconds) * time.Second
			android.TTL = &ttl
		}
		if props.ChannelID != "" {
			android.Notification = &messaging.AndroidNotification{ChannelID: props.ChannelID}
		}
		msg.Android = android
	}
	return msg
}

//go:build integration

package pushgateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-push-gateway/internal/gateway"
	fsStore "github.com/tinywideclouds/go-push-gateway/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
	"github.com/tinywideclouds/go-push-gateway/pushgateway"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

// --- MOCKS ---

// countingDispatcher accepts every push and remembers the last target.
type countingDispatcher struct {
	mu         sync.Mutex
	provider   push.Provider
	callCount  int
	lastTarget string
}

func (m *countingDispatcher) Dispatch(ctx context.Context, p *push.Push) (*dispatch.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.lastTarget = p.Target()
	return &dispatch.Receipt{
		Provider:  m.provider.String(),
		Target:    p.Target(),
		MessageID: fmt.Sprintf("msg-%d", m.callCount),
		Sent:      true,
	}, nil
}

func (m *countingDispatcher) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *countingDispatcher) GetLastTarget() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTarget
}

func noopAuth(h http.Handler) http.Handler { return h }

// --- TEST ---

func TestPushGateway_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-integ"

	// 1. Emulators
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	receipts := fsStore.NewReceiptStore(fsClient)

	t.Run("Publish -> Dispatch -> Receipt", func(t *testing.T) {
		topicID := "push-success-" + uuid.NewString()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		fcmDispatcher := &countingDispatcher{provider: push.ProviderFirebase}
		gw := gateway.New(map[push.Provider]dispatch.Dispatcher{push.ProviderFirebase: fcmDispatcher}, receipts, logger)

		consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(subID)
		consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
		require.NoError(t, err)

		svc, err := pushgateway.New(&config.Config{ListenAddr: ":0", NumPipelineWorkers: 2}, consumer, gw, receipts, noopAuth, logger)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		token := "android-token-" + uuid.NewString()
		payload, err := json.Marshal(push.ForFirebase(push.Content{Title: "Hello"}, push.FirebasePushProps{Token: token}))
		require.NoError(t, err)
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return fcmDispatcher.GetCallCount() == 1
		}, 10*time.Second, 100*time.Millisecond)
		assert.Equal(t, token, fcmDispatcher.GetLastTarget())

		require.Eventually(t, func() bool {
			stored, err := receipts.ListForTarget(ctx, token, 10)
			return err == nil && len(stored) == 1 && stored[0].Sent
		}, 10*time.Second, 200*time.Millisecond)
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}

// waitForDLQ returns the first message delivered to subID, or nil on timeout.
func waitForDLQ(t *testing.T, ctx context.Context, client *pubsub.Client, subID string) *pubsub.Message {
	t.Helper()
	var received *pubsub.Message
	cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	err := client.Subscriber(subID).Receive(cctx, func(ctx context.Context, msg *pubsub.Message) {
		msg.Ack()
		received = msg
		cancel()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("DLQ Receive returned an unexpected error: %v", err)
	}
	return received
}

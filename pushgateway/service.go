package pushgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[push.Push]
	receiptsEnabled bool
	logger          *slog.Logger
}

// New assembles the service. receipts may be nil, in which case the receipt
// lookup routes are not registered.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	sender pipeline.Sender,
	receipts dispatch.ReceiptStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(sender, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.PushTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	pushAPI := api.NewPushAPI(sender, receipts, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/push", pushAPI.SendPush)
	if receipts != nil {
		handle("GET /api/v1/receipts/{id}", pushAPI.GetReceipt)
		handle("GET /api/v1/receipts", pushAPI.ListReceipts)
	}

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		receiptsEnabled: receipts != nil,
		logger:          logger.With("component", "PushGateway"),
	}, nil
}

// Start begins consuming push requests, then serves HTTP until shutdown.
// The readiness probe flips only once the pipeline is running.
func (w *Wrapper) Start(ctx context.Context) error {
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start push pipeline: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Push gateway ready", "receipts", w.receiptsEnabled)
	return w.BaseServer.Start()
}

// Shutdown stops the pipeline first, then the HTTP server.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.SetReady(false)
	pipelineErr := w.pipelineService.Stop(ctx)
	if pipelineErr != nil {
		w.logger.Error("Push pipeline shutdown failed", "err", pipelineErr)
	}
	serverErr := w.BaseServer.Shutdown(ctx)
	if serverErr != nil {
		w.logger.Error("HTTP server shutdown failed", "err", serverErr)
	}
	return errors.Join(pipelineErr, serverErr)
}

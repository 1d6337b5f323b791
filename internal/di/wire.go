//go:build wireinject
// +build wireinject

package di

import (
	"PriceSentinel/pkg/config"
	"PriceSentinel/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Metrics
		ProvidePromRegistry,
		ProvideMetrics,
		ProvideQueryMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideStore,
		ProvideCache,
		ProvideKafkaConsumer,

		// Domain services
		ProvidePriceSource,
		ProvideEvaluator,
		ProvideBroadcastRegistry,
		ProvideSignalPipeline,
		ProvideConnectLimiter,

		// Use cases
		ProvideIngestionLoop,
		ProvideMarketQuery,
		ProvideSignalRelay,

		// HTTP
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"RateCast/pkg/config"
	"RateCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideSchema,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgres,
		ProvideCache,
		ProvideKafkaProducer,

		// Repositories
		ProvideQuotes,
		ProvidePriceSource,
		ProvideMart,
		ProvideForecastLog,
		ProvideModelStore,
		ProvideRunPublisher,

		// Delivery
		ProvideHub,
		ProvideLimiter,
		ProvideNotifier,
		ProvideReporter,

		// Use cases
		ProvideBuilder,
		ProvideTrainer,
		ProvidePipelineRunner,
		ProvideForecastService,
		ProvideScheduler,
		ProvideKafkaConsumer,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"LiqMap/pkg/config"
	"LiqMap/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideMarketStore,
		ProvideSnapshotStore,
		ProvideSnapshotPublisher,

		// Simulation policies
		ProvideMarginProvider,
		ProvideSimFactory,

		// Use cases and delivery
		ProvideLiveSet,
		ProvideSnapshotProcessor,
		ProvideWSHub,
		ProvidePipeline,
		ProvideKafkaBarsHandler,
		ProvideHeatmapUseCase,
		ProvideResponseCache,
		ProvideLockCache,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

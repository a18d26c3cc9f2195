//go:build wireinject
// +build wireinject

package di

import (
	"QuantMini/pkg/config"
	"QuantMini/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisClient,
	ProvideClickHouseClient,
	ProvideCacheStore,
	ProvideKafkaProducer,
	ProvideEventPublisher,
	ProvideMarketData,
)

var factorsSet = wire.NewSet(
	infraSet,
	ProvideOrchestrator,
	ProvideFactorsUseCase,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		factorsSet,

		// Background refresh
		ProvideQueue,
		ProvideWarmer,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil
}

// InitializeFactors wires the factors use case without the HTTP surface.
func InitializeFactors(cfg *config.Config) (*Factors, error) {
	wire.Build(
		factorsSet,
		wire.Struct(new(Factors), "*"),
	)
	return nil, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"NiftyScan/pkg/config"
	"NiftyScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,

		// Infrastructure clients
		ProvideCache,
		ProvideNotifier,
		ProvideAuditStore,

		// Market data adapters
		ProvideQuoteSource,
		ProvideRateLimiter,
		ProvideTicker,

		// Use cases
		ProvideQuoteService,
		ProvideEvaluator,
		ProvideScanner,
		ProvideTickPipeline,

		// HTTP surface and application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

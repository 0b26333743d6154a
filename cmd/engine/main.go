package main

import (
	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-engine/internal/adapters/near"
	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	enginecommon "github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/http"
	"github.com/hxuan190/swap-engine/internal/services/executor"
	"github.com/hxuan190/swap-engine/internal/services/market"
	"github.com/hxuan190/swap-engine/internal/services/resolver"
	"github.com/hxuan190/swap-engine/internal/services/router"
	"github.com/hxuan190/swap-engine/internal/services/session"
)

// @title Swap Engine API
// @version 1.0
// @description Swap quoting and execution engine for a constant-product and stable-swap exchange.
// @description
// @description ## - Features
// @description - **Split Routing**: Parallel swaps split across up to three direct pools
// @description - **Stable Pools**: Stable-swap curve quotes through the designated stable pools
// @description - **Smart Routing**: Two-hop routes through one intermediate token
// @description - **Quote Sessions**: Quotes that refresh in the background until the user confirms
// @description - **Outcome Resolution**: One-time success or slippage notification after the wallet redirect
// @description
// @description ## - Usage Tips
// @description - Amounts are readable token amounts, e.g. "1.5"
// @description - Slippage is a percentage, default 0.5
// @description - Rate Limit: 10 requests/second (burst: 20)
// @BasePath /
// @schemes https http
// @tag.name quote
// @tag.description One-shot swap quotes
// @tag.name session
// @tag.description Live quote sessions and swap submission
// @tag.name tx
// @tag.description Transaction outcome resolution
// @tag.name pool
// @tag.description Pool state

func main() {
	// a missing .env is fine, the environment may be set by the deployment
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded")
	}
	enginecommon.SetupLogger(
		common.GetEnvOrDefault("LOG_LEVEL", "INFO"),
		common.GetEnvOrDefault("ENV", "dev"),
	)

	// di container config
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.RPCConfig{},
		&config.SwapConfig{},
		&config.StorageConfig{},
	)

	// di container
	dic, err := container.New(
		// config
		conf,

		// adapters
		&persistence.Storage{},
		&near.Client{},

		// services
		&market.Service{},
		&router.Estimator{},
		&executor.Submitter{},
		&resolver.Resolver{},
		&session.Manager{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}

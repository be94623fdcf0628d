package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fusion-network/pvm/internal/accesscontrol"
	"github.com/fusion-network/pvm/internal/balances"
	"github.com/fusion-network/pvm/internal/config"
	"github.com/fusion-network/pvm/internal/connectors"
	"github.com/fusion-network/pvm/internal/engine"
	"github.com/fusion-network/pvm/internal/logger"
	"github.com/fusion-network/pvm/internal/marketcfg"
	"github.com/fusion-network/pvm/internal/oracle"
	"github.com/fusion-network/pvm/internal/simulations"
	"github.com/fusion-network/pvm/internal/state"
	"github.com/fusion-network/pvm/internal/types"
	"github.com/fusion-network/pvm/internal/utils"
	"github.com/fusion-network/pvm/internal/vault"
	"github.com/fusion-network/pvm/internal/web"
)

const (
	REFRESH_INTERVAL = 10 * time.Minute

	// Default market wired in simulation mode.
	SIM_LENDING_MARKET_ID types.MarketID = 1
)

// main is the entry point for the PVM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("PVM Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Role Registry Bootstrap ---
	roles, err := accesscontrol.NewRegistry(config.AtomistAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create role registry")
	}
	if err := roles.Grant(config.AtomistAddress, accesscontrol.RoleAlpha, config.AlphaAddress); err != nil {
		log.Fatal().Err(err).Msg("Failed to grant Alpha role")
	}

	// --- 3. Market Configuration (persisted, rehydrated on boot) ---
	marketStore, err := marketcfg.NewStore(roles, state.MarketConfigPersister{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create market configuration store")
	}

	savedConfigs, err := state.LoadMarketConfigs()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted market configurations")
	}
	for _, cfg := range savedConfigs {
		marketStore.Restore(cfg.ID, cfg.Substrates, cfg.BalanceFuse)
	}
	log.Info().Int("markets", len(savedConfigs)).Msg("Market configurations rehydrated")

	// --- 4. Vault Ledger ---
	ledger, err := vault.NewLedger(config.VaultAddress, config.BaseAsset, config.BaseAssetDecimals)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault ledger")
	}

	savedTotals, err := state.LoadMarketTotals()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted market totals")
	}
	for _, total := range savedTotals {
		if err := ledger.SetMarketTotal(total.ID, total.ValueWAD); err != nil {
			log.Fatal().Err(err).Uint64("marketId", uint64(total.ID)).Msg("Failed to restore market total")
		}
	}

	savedFeeState, err := state.LoadFeeState()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load persisted fee state")
	}

	// --- 5. Protocol Wiring (with Safety Switch) ---
	pvmMode := os.Getenv("PVM_MODE")
	if pvmMode != "sim" {
		log.Fatal().Msg("PVM_MODE is not set to 'sim'. Halting to prevent accidental execution. Set PVM_MODE=sim to run against simulated venues.")
	}
	log.Info().Msg("Initializing PVM in SIM mode. All protocol venues are in-process simulations.")

	// Price oracle: static USD feeds behind the Chainlink-shaped registry.
	feeds := simulations.NewFeedRegistry()
	feeds.Add(config.BaseAsset, simulations.NewStaticFeed(utils.Pow10(utils.PriceDecimals), utils.PriceDecimals))

	priceOracle, err := oracle.NewMiddleware(roles, feeds)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create price oracle middleware")
	}

	// Simulated lending venue holding the base asset.
	pool, err := simulations.NewPool("aave_v3", map[common.Address]int{config.BaseAsset: config.BaseAssetDecimals})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create simulated lending pool")
	}

	fuseRegistry, err := connectors.NewRegistry(roles)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fuse registry")
	}

	supplyFuse, err := connectors.NewAaveV3SupplyFuse(SIM_LENDING_MARKET_ID, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create supply fuse")
	}
	if err := fuseRegistry.Register(config.AtomistAddress, supplyFuse); err != nil {
		log.Fatal().Err(err).Msg("Failed to register supply fuse")
	}

	balanceRegistry, err := balances.NewRegistry(roles)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create balance fuse registry")
	}

	balanceFuse, err := balances.NewLendingBalanceFuse("aave_v3_balance", "2.0.0", SIM_LENDING_MARKET_ID, pool, pool, priceOracle, marketStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create balance fuse")
	}
	if err := balanceRegistry.Register(config.AtomistAddress, balanceFuse); err != nil {
		log.Fatal().Err(err).Msg("Failed to register balance fuse")
	}

	// First boot: grant the base asset on the default market and bind its
	// balance fuse. Subsequent boots reuse the rehydrated configuration.
	if len(marketStore.Markets()) == 0 {
		substrates := []types.Substrate{types.SubstrateFromAsset(config.BaseAsset)}
		if err := marketStore.GrantSubstrates(config.AtomistAddress, SIM_LENDING_MARKET_ID, substrates); err != nil {
			log.Fatal().Err(err).Msg("Failed to grant default market substrates")
		}
		if err := marketStore.SetBalanceFuse(config.AtomistAddress, SIM_LENDING_MARKET_ID, balanceFuse.Address()); err != nil {
			log.Fatal().Err(err).Msg("Failed to bind default balance fuse")
		}
	}

	// --- 6. Routing Engine ---
	eng, err := engine.NewEngine(engine.Config{
		Ledger:       ledger,
		Roles:        roles,
		Markets:      marketStore,
		Fuses:        fuseRegistry,
		BalanceFuses: balanceRegistry,
		Prices:       priceOracle,
		FeeConfig: types.FeeConfig{
			ManagementFeeBps:   config.ManagementFeeBps,
			PerformanceFeeBps:  config.PerformanceFeeBps,
			ManagementAccount:  config.ManagementFeeAccount,
			PerformanceAccount: config.PerformanceFeeAccount,
		},
		RestoredFeeState: savedFeeState,
		RewardsManager:   config.RewardsClaimManager,
		Persister:        state.EnginePersister{},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create routing engine")
	}

	routes := []types.WithdrawRoute{{Fuse: supplyFuse.Address(), Asset: config.BaseAsset}}
	if err := eng.SetWithdrawRoutes(config.AtomistAddress, routes); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure withdrawal routes")
	}

	log.Info().Msg("Routing engine created successfully")

	// --- 7. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, eng, marketStore, fuseRegistry)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting PVM reader API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 8. Periodic Reconciliation Loop ---
	log.Info().Str("interval", REFRESH_INTERVAL.String()).Msg("Starting market reconciliation loop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(REFRESH_INTERVAL)
	defer ticker.Stop()

	refresh := func() {
		marketIDs := marketStore.Markets()
		if len(marketIDs) == 0 {
			return
		}
		if err := eng.RefreshMarkets(ctx, config.AtomistAddress, marketIDs); err != nil {
			log.Error().Err(err).Msg("Market reconciliation failed")
			return
		}
		total, err := eng.TotalAssets(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to compute total assets")
			return
		}
		log.Info().Str("totalAssetsWad", total.String()).Msg("Market reconciliation complete")
	}

	refresh()

	for {
		select {
		case <-ticker.C:
			refresh()
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			return
		}
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

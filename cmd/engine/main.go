package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/config"
	"github.com/dapp-network/staking-engine/internal/funder"
	"github.com/dapp-network/staking-engine/internal/ledger"
	"github.com/dapp-network/staking-engine/internal/logger"
	"github.com/dapp-network/staking-engine/internal/protection"
	"github.com/dapp-network/staking-engine/internal/state"
	"github.com/dapp-network/staking-engine/internal/types"
	"github.com/dapp-network/staking-engine/internal/web"
)

// genesisPool mirrors the launch configuration: early pools pay less and
// unlock sooner, later pools carry heavier weights behind longer locks.
type genesisPool struct {
	allocWeight uint64
	timeLock    time.Duration
}

var genesisPools = []genesisPool{
	{allocWeight: 500, timeLock: 0},
	{allocWeight: 750, timeLock: 30 * 24 * time.Hour},
	{allocWeight: 1000, timeLock: 60 * 24 * time.Hour},
	{allocWeight: 1500, timeLock: 90 * 24 * time.Hour},
	{allocWeight: 2500, timeLock: 180 * 24 * time.Hour},
	{allocWeight: 4000, timeLock: 365 * 24 * time.Hour},
	{allocWeight: 6000, timeLock: 730 * 24 * time.Hour},
}

// main is the entry point for the staking engine daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Staking engine starting...")

	// Persistence is optional; without DB_HOST the engine runs in-memory only.
	var recorder ledger.Recorder
	if os.Getenv("DB_HOST") != "" {
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
		recorder = state.DBRecorder{}
	} else {
		log.Warn().Msg("DB_HOST not set, running without receipt persistence")
	}

	// --- 2. Assemble collaborators ---
	emission, ok := sdkmath.NewIntFromString(config.EmissionPerBlock)
	if !ok {
		log.Fatal().Str("value", config.EmissionPerBlock).Msg("ENGINE_EMISSION_PER_BLOCK is not a valid integer")
	}

	assets := bank.NewLedger()
	chain := types.NewSystemChain(config.BlockInterval)
	protocol := protection.NewSimulator(assets, chain, "liquidity-protection", protection.DefaultRate)

	engine, err := ledger.NewEngine(ledger.Config{
		Bank:             assets,
		Protocol:         protocol,
		Chain:            chain,
		Recorder:         recorder,
		Account:          config.EngineAccount,
		Owner:            config.OwnerAccount,
		TrustedProtocol:  protocol.Account,
		EmissionPerBlock: emission,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	for _, gp := range genesisPools {
		if _, err := engine.AddPool(config.OwnerAccount, gp.allocWeight, gp.timeLock); err != nil {
			log.Fatal().Err(err).Msg("Failed to register genesis pool")
		}
	}
	log.Info().Int("pools", len(genesisPools)).Msg("Genesis pools registered")

	// --- 3. Funding controller ---
	fundingController, err := funder.New(assets, engine, config.FunderAccount, config.FunderSplitBps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create funding controller")
	}
	cronRunner, err := fundingController.Schedule(config.FundingSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule funding controller")
	}
	defer cronRunner.Stop()
	log.Info().Str("schedule", config.FundingSchedule).Msg("Funding controller scheduled")

	// --- 4. Query API ---
	webServer := web.NewWebServer(config.WebPort, engine)
	go func() {
		log.Info().Str("port", config.WebPort).Msg("Starting query API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Query API failed")
		}
	}()

	// --- 5. Wait for shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

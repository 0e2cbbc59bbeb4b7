package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EmissionPerBlock is the base-asset emission distributed across all pools
	// each block, expressed in base units (e.g. "15000000000000000000").
	EmissionPerBlock string

	// BlockInterval is the assumed block production interval used to derive
	// the engine's block height from wall-clock time.
	BlockInterval time.Duration

	// FunderSplitBps is the funder's reward share of its balance in basis
	// points; the remainder funds IL compensation. 7000 means 70/30.
	FunderSplitBps uint64

	// FundingSchedule is the cron expression on which the funder drains its
	// balance into the engine reserves.
	FundingSchedule string

	// EngineAccount is the bank account that holds the engine's reserves.
	EngineAccount string
	// FunderAccount is the bank account the satellite funder draws from.
	FunderAccount string
	// OwnerAccount is the administrator allowed to register pools.
	OwnerAccount string

	// WebPort is the port for the read-only query API.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. All listed variables are required except WEB_PORT.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	EmissionPerBlock, err = getEnv("ENGINE_EMISSION_PER_BLOCK")
	if err != nil {
		return err
	}

	blockMillis, err := getEnvAsUint64("ENGINE_BLOCK_INTERVAL_MS")
	if err != nil {
		return err
	}
	BlockInterval = time.Duration(blockMillis) * time.Millisecond

	FunderSplitBps, err = getEnvAsUint64("FUNDER_SPLIT_BPS")
	if err != nil {
		return err
	}
	if FunderSplitBps > 10_000 {
		return errors.New("FUNDER_SPLIT_BPS must not exceed 10000")
	}

	FundingSchedule, err = getEnv("FUNDER_SCHEDULE")
	if err != nil {
		return err
	}

	EngineAccount, err = getEnv("ENGINE_ACCOUNT")
	if err != nil {
		return err
	}

	FunderAccount, err = getEnv("FUNDER_ACCOUNT")
	if err != nil {
		return err
	}

	OwnerAccount, err = getEnv("ENGINE_OWNER_ACCOUNT")
	if err != nil {
		return err
	}

	WebPort = os.Getenv("WEB_PORT")
	if WebPort == "" {
		WebPort = "8080"
	}

	log.Debug().
		Str("EmissionPerBlock", EmissionPerBlock).
		Dur("BlockInterval", BlockInterval).
		Uint64("FunderSplitBps", FunderSplitBps).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

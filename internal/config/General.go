package config

import (
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultAddress is the account identity the vault uses against external protocols.
	VaultAddress common.Address

	// BaseAsset is the ERC-20 address of the vault's underlying asset.
	BaseAsset common.Address
	// BaseAssetDecimals is the underlying asset's decimal precision.
	BaseAssetDecimals int

	// AtomistAddress holds the governance role at startup.
	AtomistAddress common.Address
	// AlphaAddress holds the operator role at startup.
	AlphaAddress common.Address

	// RewardsClaimManager receives claimed protocol rewards. May be zero,
	// in which case claim fuses refuse to run.
	RewardsClaimManager common.Address
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required unless noted otherwise.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultAddress, err = getEnvAsAddress("PVM_VAULT_ADDRESS")
	if err != nil {
		return err
	}

	BaseAsset, err = getEnvAsAddress("PVM_BASE_ASSET")
	if err != nil {
		return err
	}

	BaseAssetDecimals, err = getEnvAsInt("PVM_BASE_ASSET_DECIMALS")
	if err != nil {
		return err
	}
	if BaseAssetDecimals < 0 || BaseAssetDecimals > 18 {
		return errors.New("PVM_BASE_ASSET_DECIMALS must be between 0 and 18")
	}

	AtomistAddress, err = getEnvAsAddress("PVM_ATOMIST_ADDRESS")
	if err != nil {
		return err
	}

	AlphaAddress, err = getEnvAsAddress("PVM_ALPHA_ADDRESS")
	if err != nil {
		return err
	}

	// Optional: claim fuses error at call time when this stays zero.
	if raw, ok := lookupEnv("PVM_REWARDS_CLAIM_MANAGER"); ok {
		if !common.IsHexAddress(raw) {
			return errors.New("PVM_REWARDS_CLAIM_MANAGER must be a valid hex address, got: " + raw)
		}
		RewardsClaimManager = common.HexToAddress(raw)
	}

	if err := loadFeeConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultAddress", VaultAddress.Hex()).
		Str("BaseAsset", BaseAsset.Hex()).
		Int("BaseAssetDecimals", BaseAssetDecimals).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := lookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
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

// getEnvAsAddress retrieves an environment variable as a hex address. Returns error if not set or invalid.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a valid hex address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

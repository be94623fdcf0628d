package config

import (
	"errors"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// Fee configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ManagementFeeBps is the annualized management fee in basis points.
	ManagementFeeBps uint64
	// PerformanceFeeBps is the performance fee in basis points, charged on
	// share-price growth above the high-water mark.
	PerformanceFeeBps uint64
	// ManagementFeeAccount receives minted management-fee shares.
	ManagementFeeAccount common.Address
	// PerformanceFeeAccount receives minted performance-fee shares.
	PerformanceFeeAccount common.Address
)

const maxFeeBps = 10_000

func loadFeeConfig() error {
	var err error

	ManagementFeeBps, err = getEnvAsUint64("PVM_MANAGEMENT_FEE_BPS")
	if err != nil {
		return err
	}
	if ManagementFeeBps > maxFeeBps {
		return errors.New("PVM_MANAGEMENT_FEE_BPS exceeds 10000")
	}

	PerformanceFeeBps, err = getEnvAsUint64("PVM_PERFORMANCE_FEE_BPS")
	if err != nil {
		return err
	}
	if PerformanceFeeBps > maxFeeBps {
		return errors.New("PVM_PERFORMANCE_FEE_BPS exceeds 10000")
	}

	ManagementFeeAccount, err = getEnvAsAddress("PVM_MANAGEMENT_FEE_ACCOUNT")
	if err != nil {
		return err
	}

	PerformanceFeeAccount, err = getEnvAsAddress("PVM_PERFORMANCE_FEE_ACCOUNT")
	if err != nil {
		return err
	}

	return nil
}

// lookupEnv wraps os.LookupEnv so required and optional getters share one seam.
func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

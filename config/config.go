// Package config holds the recognized tuning knobs for a kontourd node.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kontourlabs/kontourd/pqsig"
)

// Config is the full configuration surface. Zero values are not usable;
// start from Default and override.
type Config struct {
	// Geometric proof bounds.
	Dimensions    int     `mapstructure:"dimensions"`
	Precision     float64 `mapstructure:"precision"`
	Tolerance     float64 `mapstructure:"tolerance"`
	MinComplexity float64 `mapstructure:"min_complexity"`

	// Consensus.
	InitialDifficulty int           `mapstructure:"initial_difficulty"`
	MiningReward      uint64        `mapstructure:"mining_reward"`
	TargetBlockTime   time.Duration `mapstructure:"target_block_time"`

	// Signatures.
	SignatureAlgorithm pqsig.Algorithm `mapstructure:"signature_algorithm"`

	// Remote verification oracle.
	OracleEndpoint string        `mapstructure:"oracle_endpoint"`
	OracleTimeout  time.Duration `mapstructure:"oracle_timeout"`

	// Pending pool bound; zero means unbounded.
	MaxPoolSize int `mapstructure:"max_pool_size"`

	// Chain database path; empty keeps the chain in memory only.
	DataDir string `mapstructure:"data_dir"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Dimensions:         3,
		Precision:          0.01,
		Tolerance:          0.05,
		MinComplexity:      75.0,
		InitialDifficulty:  4,
		MiningReward:       50,
		TargetBlockTime:    10 * time.Minute,
		SignatureAlgorithm: pqsig.Dilithium3,
		OracleEndpoint:     "http://localhost:8000/verify-contour",
		OracleTimeout:      5 * time.Second,
	}
}

// Validate rejects configurations the ledger cannot run with.
func (c Config) Validate() error {
	if c.Dimensions < 1 {
		return errors.New("config: dimensions must be at least 1")
	}
	if c.Precision <= 0 {
		return errors.New("config: precision must be positive")
	}
	if c.Tolerance < 0 {
		return errors.New("config: tolerance must not be negative")
	}
	if c.MinComplexity < 0 || c.MinComplexity > 100 {
		return errors.New("config: min_complexity must be within [0, 100]")
	}
	if c.InitialDifficulty < 1 {
		return errors.New("config: initial_difficulty must be at least 1")
	}
	if c.TargetBlockTime <= 0 {
		return errors.New("config: target_block_time must be positive")
	}
	if c.OracleTimeout <= 0 {
		return errors.New("config: oracle_timeout must be positive")
	}
	if c.MaxPoolSize < 0 {
		return errors.New("config: max_pool_size must not be negative")
	}
	if !pqsig.Registered(c.SignatureAlgorithm) {
		return fmt.Errorf("config: %w: %q", pqsig.ErrUnsupportedAlgorithm, c.SignatureAlgorithm)
	}
	return nil
}

package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the ledger parameters. Zero values take the defaults below;
// a negative initial_grant disables registration grants.
type Config struct {
	ConfirmationThreshold int           `yaml:"confirmation_threshold"`
	MaxReferences         int           `yaml:"max_references"`
	MaxFanIn              int           `yaml:"max_fan_in"`
	MaxTraversalDepth     int           `yaml:"max_traversal_depth"`
	MinAmount             float64       `yaml:"min_amount"`
	FeeRate               float64       `yaml:"fee_rate"`
	MinFee                float64       `yaml:"min_fee"`
	MaxFee                float64       `yaml:"max_fee"`
	InitialGrant          float64       `yaml:"initial_grant"`
	LockTimeout           time.Duration `yaml:"lock_timeout"`
}

const (
	DefaultConfirmationThreshold = 3
	DefaultMaxReferences         = 2
	DefaultMaxFanIn              = 4
	DefaultMaxTraversalDepth     = 1024
	DefaultMinAmount             = 0.01
	DefaultFeeRate               = 0.01
	DefaultMinFee                = 0.1
	DefaultMaxFee                = 5.0
	DefaultInitialGrant          = 1000
	DefaultLockTimeout           = 2 * time.Second

	// MaxAmountDecimals is the finest precision an amount may carry.
	MaxAmountDecimals = 8
	maxAmountExponent = 18
	maxAmountBits     = 96
)

func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ConfirmationThreshold <= 0 {
		c.ConfirmationThreshold = DefaultConfirmationThreshold
	}
	if c.MaxReferences <= 0 {
		c.MaxReferences = DefaultMaxReferences
	}
	if c.MaxFanIn <= 0 {
		c.MaxFanIn = DefaultMaxFanIn
	}
	if c.MaxTraversalDepth <= 0 {
		c.MaxTraversalDepth = DefaultMaxTraversalDepth
	}
	if c.MinAmount <= 0 {
		c.MinAmount = DefaultMinAmount
	}
	if c.FeeRate <= 0 {
		c.FeeRate = DefaultFeeRate
	}
	if c.MinFee <= 0 {
		c.MinFee = DefaultMinFee
	}
	if c.MaxFee <= 0 {
		c.MaxFee = DefaultMaxFee
	}
	if c.InitialGrant == 0 {
		c.InitialGrant = DefaultInitialGrant
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	return c
}

func (c Config) minAmount() decimal.Decimal {
	return decimal.NewFromFloat(c.MinAmount)
}

func (c Config) initialGrant() decimal.Decimal {
	if c.InitialGrant < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(c.InitialGrant)
}

func (c Config) feePolicy() FeePolicy {
	return FeePolicy{
		Rate: decimal.NewFromFloat(c.FeeRate),
		Min:  decimal.NewFromFloat(c.MinFee),
		Max:  decimal.NewFromFloat(c.MaxFee),
	}
}

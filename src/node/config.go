package node

import (
	"time"

	"github.com/onemorebsmith/casha-node/src/common"
	"github.com/onemorebsmith/casha-node/src/ledger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type NodeConfig struct {
	common.CommonConfig `yaml:",inline"`
	FeedPrefix          string        `yaml:"feed_prefix"`
	FeedKeep            int64         `yaml:"feed_keep"`
	StatsInterval       time.Duration `yaml:"stats_interval"`
	Ledger              ledger.Config `yaml:"ledger"`
	Version             string        `yaml:"-"`
}

const (
	defaultListenAddress = ":8000"
	defaultFeedPrefix    = "casha"
	defaultStatsInterval = 30 * time.Second
)

func ParseConfig(raw []byte) (NodeConfig, error) {
	cfg := NodeConfig{}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed parsing config file")
	}
	return cfg.withDefaults(), nil
}

func (c NodeConfig) withDefaults() NodeConfig {
	if c.ListenAddress == "" {
		c.ListenAddress = defaultListenAddress
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.FeedPrefix == "" {
		c.FeedPrefix = defaultFeedPrefix
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = defaultStatsInterval
	}
	return c
}

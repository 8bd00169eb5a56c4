package main

import (
	"context"
	"flag"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/onemorebsmith/casha-node/src/common"
	"github.com/onemorebsmith/casha-node/src/node"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := ioutil.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg, err := node.ParseConfig(rawCfg)
	if err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}
	cfg.Version = version

	flag.StringVar(&cfg.ListenAddress, "listen", cfg.ListenAddress, "address to serve the wallet api on, default `:8000`")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection, in-memory only when empty`)
	flag.StringVar(&cfg.RedisConfig, "redis", cfg.RedisConfig, `address of the redis feed, disabled when empty`)
	flag.StringVar(&cfg.Environment, "env", cfg.Environment, `environment reported by /health`)
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, `log level, default info`)
	flag.IntVar(&cfg.Ledger.ConfirmationThreshold, "threshold", cfg.Ledger.ConfirmationThreshold, `distinct descendants needed to confirm a transaction`)
	flag.Float64Var(&cfg.Ledger.InitialGrant, "grant", cfg.Ledger.InitialGrant, `amount granted on registration, negative disables`)

	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing casha node %s", version)
	log.Printf("\tlisten:        %s", cfg.ListenAddress)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\tredis:         %s", cfg.RedisConfig)
	log.Printf("\tenvironment:   %s", cfg.Environment)
	log.Printf("\tthreshold:     %d", cfg.Ledger.ConfirmationThreshold)
	log.Printf("\tgrant:         %f", cfg.Ledger.InitialGrant)
	log.Printf("\tpostgres:      %t", cfg.PostgresConfig != "")
	log.Println("----------------------------------")

	logger := common.ConfigureZap(common.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := node.Run(ctx, cfg, logger); err != nil && ctx.Err() == nil {
		logger.Fatal("node stopped", zap.Error(err))
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/onemorebsmith/casha-node/src/cashaapi"
	"github.com/onemorebsmith/casha-node/src/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: cashacli [-node url] <command> [args]

commands:
  info
  register <user_id> [username]
  send <from> <to> <amount> [note]
  balance <user_id>
  history <user_id>
  dag
  recent [limit]
  graph [limit]
`)
	flag.PrintDefaults()
}

func main() {
	nodeURL := flag.String("node", "http://localhost:8000", "base url of the casha node")
	verbose := flag.Bool("v", false, "log requests")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	level := zap.WarnLevel
	if *verbose {
		level = zap.InfoLevel
	}
	client := cashaapi.NewClient(*nodeURL, common.ConfigureZap(level))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := run(ctx, client, args)
	if err != nil {
		log.Fatal(err)
	}
	if s, ok := out.(string); ok {
		fmt.Println(s)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}

func arg(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func need(args []string, n int) {
	if len(args) < n {
		usage()
		os.Exit(2)
	}
}

func limit(args []string, i, def int) int {
	n := def
	if raw := arg(args, i, ""); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			log.Fatalf("bad limit %q", raw)
		}
	}
	return n
}

func run(ctx context.Context, c *cashaapi.Client, args []string) (any, error) {
	switch args[0] {
	case "info":
		return c.Info(ctx)
	case "register":
		need(args, 2)
		return c.Register(ctx, args[1], arg(args, 2, ""))
	case "send":
		need(args, 4)
		amount, err := decimal.NewFromString(args[3])
		if err != nil {
			return nil, errors.Wrapf(err, "bad amount %q", args[3])
		}
		return c.Session(args[1]).Send(ctx, args[2], amount, arg(args, 4, ""))
	case "balance":
		need(args, 2)
		return c.Session(args[1]).Balance(ctx)
	case "history":
		need(args, 2)
		return c.Session(args[1]).History(ctx)
	case "dag":
		return c.DAGInfo(ctx)
	case "recent":
		return c.Recent(ctx, limit(args, 1, 20))
	case "graph":
		return c.DAGGraph(ctx, limit(args, 1, 100))
	default:
		usage()
		os.Exit(2)
		return nil, nil
	}
}

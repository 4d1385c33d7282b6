package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stratumcore"
)

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "stratumcore: %s: %v\n", what, err)
	os.Exit(1)
}

func main() {
	configFlag := flag.String("config", "config.toml", "path to config.toml")
	networkFlag := flag.String("network", "", "bitcoin network: mainnet, testnet, signet, regtest")
	rpcURLFlag := flag.String("rpc-url", "", "override RPC URL")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	logLevelFlag := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	metricsListenFlag := flag.String("metrics-listen", "", "serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := stratumcore.LoadConfig(*configFlag)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("\nConfiguration file is missing: %s\n", *configFlag)
			fmt.Printf("Create it with at least [pool] payout_address set, then restart.\n\n")
			os.Exit(1)
		}
		fatal("config", err)
	}
	if *networkFlag != "" {
		cfg.Pool.Network = strings.ToLower(*networkFlag)
	}
	if *rpcURLFlag != "" {
		cfg.Node.RPCURL = *rpcURLFlag
	}
	if *stdoutLogFlag {
		cfg.Logging.Stdout = true
	}
	if *logLevelFlag != "" {
		cfg.Logging.Level = *logLevelFlag
	}

	core, err := stratumcore.NewCore(cfg)
	if err != nil {
		fatal("startup", err)
	}
	defer stratumcore.StopLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if *metricsListenFlag != "" && core.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", core.Metrics.Handler())
		metricsSrv = &http.Server{Addr: *metricsListenFlag, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "stratumcore: metrics server: %v\n", err)
			}
		}()
	}

	core.Start(ctx)
	<-ctx.Done()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	core.Stop()
}

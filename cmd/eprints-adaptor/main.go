package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValerySidorin/eprints-adaptor/pkg/adaptor"
	util_log "github.com/ValerySidorin/eprints-adaptor/pkg/util/log"
	"github.com/go-kit/log/level"
)

func main() {
	var cfg adaptor.Config
	cfg.RegisterFlags(flag.CommandLine)

	if configFile := adaptor.ConfigFileParameter(os.Args[1:]); configFile != "" {
		if err := adaptor.LoadFile(configFile, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "error loading config from %s: %v\n", configFile, err)
			os.Exit(1)
		}
	}

	flag.Parse()

	util_log.InitLogger(&cfg.Log)

	if err := cfg.Validate(); err != nil {
		_ = level.Error(util_log.Logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(1)
	}

	a, err := adaptor.New(cfg)
	util_log.CheckFatal("initializing adaptor", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = level.Info(util_log.Logger).Log("msg", "starting harvest", "source", cfg.Source.URL)
	err = a.Run(ctx)
	util_log.CheckFatal("running harvest", err)

	_ = level.Info(util_log.Logger).Log("msg", "harvest complete")
}

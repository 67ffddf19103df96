// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Procman package runs the server process: flags, config, logging, the engine loop, and the metrics endpoint.

package procman

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/hexinfra/webserv/hemi"
)

// Opts
type Opts struct {
	ProgramName  string
	ProgramTitle string
	DebugLevel   int
	ConfigFile   string // default config file
}

var (
	configFile  string
	debugLevel  int
	logLevel    string
	logFormat   string
	logFile     string
	tmpDir      string
	metricsAddr string
)

func Main(opts *Opts) {
	flags := pflag.NewFlagSet(opts.ProgramName, pflag.ContinueOnError)
	flags.Usage = func() { fmt.Printf(usage, opts.ProgramTitle, hemi.Version, opts.ProgramName, flags.FlagUsages()) }
	flags.StringVarP(&configFile, "config", "c", opts.ConfigFile, "config file")
	flags.IntVar(&debugLevel, "debug", opts.DebugLevel, "debug level. 2 and above log at trace level")
	flags.StringVar(&logLevel, "log-level", "", "override logLevel")
	flags.StringVar(&logFormat, "log-format", "", "override logFormat")
	flags.StringVar(&logFile, "log-file", "", "override logFile")
	flags.StringVar(&tmpDir, "tmp", "", "override tempDir")
	flags.StringVar(&metricsAddr, "metrics", "", "override metricsAddr")

	action := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		action, args = args[0], args[1:]
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		hemi.UseExitln(err.Error())
	}

	switch action {
	case "help":
		flags.Usage()
	case "version":
		fmt.Println(hemi.Version)
	case "check":
		if _, err := loadConfig(flags); err != nil {
			fmt.Println(err.Error())
			os.Exit(hemi.CodeUse)
		}
		fmt.Println("PASS")
	case "serve":
		serve(opts, flags)
	default:
		hemi.UseExitf("unknown action: %s\n", action)
	}
}

const usage = `
%s (%s)
================================================================================

  %s [ACTION] [OPTIONS]

ACTION
------

  serve        # start the server (default)
  check        # check the config file and exit
  help         # show this message
  version      # show version info

OPTIONS
-------

%s
`

// loadConfig loads the config file, then applies the flags that were set.
func loadConfig(flags *pflag.FlagSet) (*hemi.Config, error) {
	if configFile == "" {
		return nil, errors.New("no config file. use --config")
	}
	config, err := hemi.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	override := func(name string, prop *string, value string) {
		if flags.Changed(name) {
			*prop = value
		}
	}
	override("log-level", &config.LogLevel, logLevel)
	override("log-format", &config.LogFormat, logFormat)
	override("log-file", &config.LogFile, logFile)
	override("tmp", &config.TempDir, tmpDir)
	override("metrics", &config.MetricsAddr, metricsAddr)
	return config, nil
}

func serve(opts *Opts, flags *pflag.FlagSet) {
	config, err := loadConfig(flags)
	if err != nil {
		hemi.UseExitln(err.Error())
	}
	hemi.SetDebugLevel(int32(debugLevel))
	hemi.SetTmpDir(config.TempDir)

	logger, closer, err := hemi.NewLogger(&hemi.LogConfig{
		Name:   opts.ProgramName,
		Level:  config.LogLevel,
		Format: config.LogFormat,
		Target: config.LogFile,
	})
	if err != nil {
		hemi.EnvExitln(err.Error())
	}
	defer closer.Close()

	mux := hemi.NewPoller(logger)
	for i := range config.Servers {
		host, port, _ := config.Servers[i].HostPort() // checked by config
		if err := mux.Listen(host, port); err != nil {
			hemi.EnvExitln(err.Error())
		}
	}
	server, err := hemi.NewServer(config, mux, hemi.ServerDeps{Logger: logger})
	if err != nil {
		hemi.UseExitln(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = hemi.WithLogger(ctx, logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer stop()
		return server.Run(ctx)
	})
	if config.MetricsAddr != "" {
		group.Go(func() error { return serveMetrics(ctx, config.MetricsAddr) })
	}
	err = group.Wait()
	if shutdownErr := server.Shutdown(); shutdownErr != nil {
		logger.Warn("shutdown was not clean", "error", shutdownErr)
	}
	if err != nil {
		logger.Error("server stopped", "error", err)
		closer.Close()
		os.Exit(hemi.CodeEnv)
	}
	logger.Info("server stopped")
}

func serveMetrics(ctx context.Context, addr string) error {
	logger := hemi.LoggerFrom(ctx).Named("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(hemi.MetricsGatherer(), promhttp.HandlerOpts{
		ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics endpoint is listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

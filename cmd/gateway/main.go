package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	gwconfig "github.com/xtiangaming08/stream-phonefarm-solumate/internal/config"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/httpapi"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr          string
		adbHost       string
		adbPort       int
		recordingsDir string
		uploadsDir    string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Device-streaming gateway",
		Long:          "Gateway serving ADB device streaming, recording/replay and sync-fabric mirroring over WebSocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gwconfig.New(viper.New())
			if err != nil {
				return err
			}
			applyFlagOverrides(cfg, flagOverrides{
				addr:          addr,
				addrSet:       cmd.Flags().Changed("addr"),
				adbHost:       adbHost,
				adbHostSet:    cmd.Flags().Changed("adb-host"),
				adbPort:       adbPort,
				adbPortSet:    cmd.Flags().Changed("adb-port"),
				recordingsDir: recordingsDir,
				recDirSet:     cmd.Flags().Changed("recordings-dir"),
				uploadsDir:    uploadsDir,
				upDirSet:      cmd.Flags().Changed("uploads-dir"),
				verbose:       verbose,
			})
			return runServe(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "", "HTTP/WebSocket listen address (default :28090)")
	flags.StringVar(&adbHost, "adb-host", "", "ADB server host (default 127.0.0.1)")
	flags.IntVar(&adbPort, "adb-port", 0, "ADB server port (default 5037)")
	flags.StringVar(&recordingsDir, "recordings-dir", "", "directory to persist recordings under")
	flags.StringVar(&uploadsDir, "uploads-dir", "", "directory to store uploaded packages under")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	return cmd
}

// flagOverrides carries the CLI flag values and whether each was
// explicitly set, since an unset flag must never clobber a config file
// or environment value with its zero default.
type flagOverrides struct {
	addr          string
	addrSet       bool
	adbHost       string
	adbHostSet    bool
	adbPort       int
	adbPortSet    bool
	recordingsDir string
	recDirSet     bool
	uploadsDir    string
	upDirSet      bool
	verbose       bool
}

func applyFlagOverrides(cfg *gwconfig.Config, f flagOverrides) {
	if f.addrSet {
		cfg.HTTPAddr = f.addr
	}
	if f.adbHostSet {
		cfg.ADBHost = f.adbHost
	}
	if f.adbPortSet {
		cfg.ADBPort = f.adbPort
	}
	if f.recDirSet {
		cfg.RecordingsDir = f.recordingsDir
	}
	if f.upDirSet {
		cfg.UploadsDir = f.uploadsDir
	}
	if f.verbose {
		cfg.Verbose = true
	}
}

func runServe(cfg *gwconfig.Config) error {
	level := util.ParseLogLevel(cfg.LogLevel)
	if cfg.Verbose {
		level = util.ParseLogLevel("debug")
	}
	util.InitLoggerAtLevel(level)

	accessLog := logrus.New()
	accessLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	gw, err := gateway.New(gateway.Config{
		ADBHost:       cfg.ADBHost,
		ADBPort:       cfg.ADBPort,
		RecordingsDir: cfg.RecordingsDir,
		UploadsDir:    cfg.UploadsDir,
		LogPayload:    cfg.LogPayload,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.Start(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewMux(gw, accessLog),
	}

	errCh := make(chan error, 1)
	go func() {
		util.GetLogger().Info("gateway listening", "addr", cfg.HTTPAddr)
		color.New(color.FgGreen).Printf("gateway listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		util.GetLogger().Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

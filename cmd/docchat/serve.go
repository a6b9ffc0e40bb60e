package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/health"
	"github.com/zulandar/docchat/internal/webapi"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a chat session over HTTP",
		Long:  "Runs the JSON and server-sent event API for one chat session, and probes the backend on the configured health schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to docchat config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	rt, err := newRuntime(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	if port <= 0 {
		port = rt.cfg.Server.Port
	}

	ctrl, err := rt.newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	monitor, err := health.NewMonitor(health.MonitorOpts{
		Pinger:   rt.client,
		Schedule: rt.cfg.Health.Schedule,
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	monitor.Start(ctx)

	return webapi.Start(ctx, webapi.StartOpts{
		Controller:     ctrl,
		Health:         monitor,
		Logger:         rt.logger,
		Port:           port,
		MaxUploadBytes: rt.cfg.Session.MaxDocumentBytes,
		Out:            cmd.OutOrStdout(),
	})
}

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ems3/internal/app"

	"github.com/spf13/cobra"
)

var consoleListen string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run headless: scheduler, downloads and the console websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer(false)
		if err != nil {
			return err
		}
		defer closeContainer(c)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := c.Start(ctx); err != nil {
			return err
		}

		addr := c.Config.Console.Listen
		if consoleListen != "" {
			addr = consoleListen
		}
		if addr != "" {
			go serveConsole(ctx, c, addr)
		}

		c.Logger.Info("ems3 running", "servers", c.Config.ServersPath)
		<-ctx.Done()
		c.Logger.Info("shutting down")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&consoleListen, "console-listen", "", "address for the console websocket, e.g. 127.0.0.1:23008")
	RootCmd.AddCommand(runCmd)
}

func serveConsole(ctx context.Context, c *app.Container, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.ConsoleHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	c.Logger.Info("console websocket listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.Logger.Error("console websocket stopped", "err", err)
	}
}

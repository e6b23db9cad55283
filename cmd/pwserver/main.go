package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/playwright-python-sub003/server"
)

func main() {
	app := &cli.App{
		Name:  "pwserver",
		Usage: "hosts browser driver sessions over WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the HTTP server to listen on.",
				Value: "127.0.0.1:4444",
			},
			&cli.StringFlag{
				Name:  "driver-path",
				Usage: "Path to the driver executable. Discovered automatically if unset.",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level. One of [debug,info,warn,error].",
				Value: "info",
			},
		},
		Action: func(ctx *cli.Context) error {
			listenAddr := ctx.String("listen-addr")
			driverPath := ctx.String("driver-path")
			logLevelStr := ctx.String("log-level")

			logLevel, err := zapcore.ParseLevel(logLevelStr)
			if err != nil {
				return fmt.Errorf("parsing log level: %w", err)
			}
			logger, err := zap.NewDevelopment(zap.IncreaseLevel(logLevel))
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithListenAddr(listenAddr),
			}
			if driverPath != "" {
				opts = append(opts, server.WithDriverPath(driverPath))
			}

			srv, err := server.New(opts...)
			if err != nil {
				return fmt.Errorf("building server: %w", err)
			}
			return srv.Run()
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

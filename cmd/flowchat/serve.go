package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ffaiyaz23/flowchat/internal/chat"
	"github.com/ffaiyaz23/flowchat/internal/config"
	"github.com/ffaiyaz23/flowchat/internal/otel"
	"github.com/ffaiyaz23/flowchat/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tp, err := otel.InitTracer(ctx, "flowchat", os.Stdout)
			if err != nil {
				return err
			}
			defer func() { _ = tp.Shutdown(context.Background()) }()

			defer setupLogger()()

			client, stopMock, err := flowClient(cfg)
			if err != nil {
				return err
			}
			defer stopMock()

			h := chat.NewHandler(client, chat.Config{
				FlowID:        cfg.FlowID,
				CollectionID:  cfg.CollectionID,
				Tweaks:        chat.DefaultTweaks(),
				StreamTimeout: cfg.StreamTimeout,
			}, zap.L())
			srv := server.New(":"+cfg.Port, h, zap.L())

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()

			select {
			case err := <-errc:
				_ = h.Close()
				return err
			case <-ctx.Done():
			}

			zap.S().Infow("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().String("port", "3000", "HTTP listen port")
	return cmd
}

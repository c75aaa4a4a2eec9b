package main

import (
	"context"
	"os"

	"github.com/ffaiyaz23/flowchat/internal/config"
	"github.com/ffaiyaz23/flowchat/internal/flow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:           "flowchat",
		Short:         "Analytics chat backend for a Langflow flow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), askCmd(), chatCmd())

	if err := root.Execute(); err != nil {
		zap.S().Errorw("command failed", "error", err)
		os.Exit(1)
	}
}

// setupLogger replaces the zap globals the same way for every command.
func setupLogger() func() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to init zap: " + err.Error())
	}
	zap.ReplaceGlobals(logger)
	return func() { _ = logger.Sync() }
}

// flowClient builds a client for cfg, starting a mock flow server when
// cfg.Mock is set. The returned func stops the mock.
func flowClient(cfg config.Config) (*flow.Client, func(), error) {
	baseURL := cfg.BaseURL
	stop := func() {}
	if cfg.Mock {
		server, addr, err := flow.StartMockServer("127.0.0.1:0", cfg.ApplicationToken)
		if err != nil {
			return nil, nil, err
		}
		stop = func() { _ = server.Shutdown(context.Background()) }
		baseURL = "http://" + addr
	}
	zap.S().Infow("using flow backend", "url", baseURL, "flow_id", cfg.FlowID, "mock", cfg.Mock)
	return flow.NewClient(baseURL, cfg.ApplicationToken), stop, nil
}

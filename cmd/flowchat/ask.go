package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ffaiyaz23/flowchat/internal/chat"
	"github.com/ffaiyaz23/flowchat/internal/config"
	"github.com/ffaiyaz23/flowchat/internal/flow"
	"github.com/spf13/cobra"
)

func askCmd() *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run the flow once and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			defer setupLogger()()

			client, stopMock, err := flowClient(cfg)
			if err != nil {
				return err
			}
			defer stopMock()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			var streamErr error
			resp, s, err := client.RunFlow(ctx, cfg.FlowID, cfg.CollectionID, flow.Request{
				InputValue: strings.Join(args, " "),
				Tweaks:     chat.DefaultTweaks(),
				Stream:     stream,
			}, flow.StreamCallbacks{
				OnUpdate: func(ev flow.StreamEvent) { fmt.Fprint(out, ev.Chunk()) },
				OnClose:  func(string) { fmt.Fprintln(out) },
				OnError:  func(err error) { streamErr = err },
			})
			if err != nil {
				return err
			}

			if s == nil {
				text, err := resp.Message()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
				return nil
			}
			defer s.Close()

			select {
			case <-s.Done():
			case <-ctx.Done():
				_ = s.Close()
				<-s.Done()
				return errors.New("interrupted")
			}
			return streamErr
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&stream, "stream", false, "print the reply as it streams in")
	return cmd
}

package main

import (
	"bufio"
	"fmt"

	"github.com/ffaiyaz23/flowchat/internal/chat"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func chatCmd() *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a running flowchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer setupLogger()()

			w := chat.NewWidget(endpoint, nil, zap.L())
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "assistant>", chat.Greeting)

			in := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "you> ")
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				if reply, ok := w.Send(cmd.Context(), in.Text()); ok {
					fmt.Fprintln(out, "assistant>", reply.Text)
				}
			}
		},
	}
	cmd.Flags().StringVar(&endpoint, "server", "http://localhost:3000/api/collection", "chat endpoint URL")
	return cmd
}

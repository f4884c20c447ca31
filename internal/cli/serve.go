package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/todo/internal/web"
)

var serveAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task list over an HTTP JSON API",
	Long: `Start the HTTP API. Requests authenticate with "Authorization: Bearer <token>"
where tokens map to user IDs under server.tokens in .todoconfig. Each user gets
their own task list when storage.backend is sqlite.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Stores == nil {
			return fmt.Errorf("task store provider not initialized")
		}
		addr := serveAddrFlag
		if addr == "" {
			addr = ServerAddr
		}
		if addr == "" {
			addr = ":8080"
		}
		if len(ServerOptions.Tokens) == 0 && ServerOptions.DefaultUser == "" {
			return fmt.Errorf("no API tokens configured: set server.tokens in .todoconfig")
		}

		srv := web.NewServer(Stores, ServerOptions)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Serving tasks on %s\n", addr)
		if err := srv.Run(ctx, addr); err != nil {
			return fmt.Errorf("running API server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "Listen address (default server.addr from .todoconfig)")
	rootCmd.AddCommand(serveCmd)
}

package cli

import (
	"github.com/spf13/cobra"

	"edubot/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the answer API over HTTP",
	Long: `Load the index and models once, then answer POST /api/v1/answer requests
until interrupted.

Examples:
  edubot serve
  edubot serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		r, err := newAnswerer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer r.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		return server.NewServer(addr, r).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

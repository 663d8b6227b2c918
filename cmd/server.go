package cmd

import (
	"github.com/spf13/cobra"

	"checkmate/web"
)

func serverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `This command starts the HTTP API server for the application.`,
		Run: func(cmd *cobra.Command, args []string) {
			isDev, _ := cmd.Flags().GetBool("dev")
			port, _ := cmd.Flags().GetString("port")
			mqMode, _ := cmd.Flags().GetString("mq")
			rateLimit, _ := cmd.Flags().GetInt("rate-limit")

			web.Serve(web.ServiceConfig{
				IsDev:           isDev,
				Port:            port,
				MQMode:          mqMode,
				RateLimitPerMin: rateLimit,
			})
		},
	}

	cmd.Flags().Bool("dev", true, "Run in development mode")
	cmd.Flags().String("port", "8080", "Port to run the web server on")
	cmd.Flags().String("mq", "local", "Message queue mode (local, rabbit, gcp)")
	cmd.Flags().Int("rate-limit", 0, "Requests per minute per client, 0 disables limiting")

	return cmd
}

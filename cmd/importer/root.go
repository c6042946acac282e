package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bookcatalog-backend/pkg/container"
	"bookcatalog-backend/pkg/logger"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "importer",
		Short: "Bulk book import from the metadata provider",
		Long: `Importer runs catalog imports from the command line against the same
database, object storage and provider as the API.

Results are printed as JSON on stdout; logs go to stderr.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			envErr := godotenv.Load()
			logger.Init(envOr("APP_ENV", "development"))
			if envErr != nil {
				logger.Debug("No .env file found, using system environment variables")
			}
		},
	}

	cmd.AddCommand(newISBNsCmd())
	cmd.AddCommand(newEntityCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRetryCmd())

	return cmd
}

// withContainer builds the dependency graph for one command
func withContainer(fn func(c *container.Container) error) error {
	c, err := container.NewContainer()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer c.Cleanup()
	return fn(c)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

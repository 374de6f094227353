package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/stockroom/internal/stockclient"
)

const (
	defaultAPIURL    = "http://127.0.0.1:8080/api/v2"
	defaultRedisAddr = "127.0.0.1:6379"
)

type rootOptions struct {
	apiURL    string
	redisAddr string
	timeout   time.Duration
}

func (o *rootOptions) client() *stockclient.Client {
	return stockclient.NewClient(o.apiURL, o.timeout)
}

// newRootCmd builds the command tree. lookupEnv supplies flag defaults so
// tests can run without touching the process environment.
func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "stockctl",
		Short:        "Manage the stock collection",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", envOr(lookupEnv, "STOCK_API_URL", defaultAPIURL), "stock API base URL")
	flags.StringVar(&opts.redisAddr, "redis", envOr(lookupEnv, "REDIS_ADDR", defaultRedisAddr), "job queue Redis address")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		newListCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newDeleteCmd(opts),
		newJobsCmd(opts),
	)
	return cmd
}

func envOr(lookupEnv func(string) (string, bool), key, fallback string) string {
	if lookupEnv == nil {
		return fallback
	}
	if v, ok := lookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

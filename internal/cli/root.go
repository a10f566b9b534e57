package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/pkg/config"
)

// NewRootCommand creates the tanium-adapter command tree.
func NewRootCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tanium-adapter",
		Short: "Tanium Threat Response connector",
		Long: `tanium-adapter runs Threat Response commands against a Tanium server,
fetches new alerts as incidents and serves both over HTTP.

Connection settings come from the environment (TANIUM_URL, TANIUM_USERNAME,
TANIUM_PASSWORD or TANIUM_API_TOKEN) or from AWS Secrets Manager when
TANIUM_SECRETS_ENABLED is set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	o := &opts
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Config == nil {
		o.Config = config.Load()
	}
	cmd.AddCommand(
		newCommandsCmd(o),
		newRunCmd(o),
		newDownloadCmd(o),
		newFetchCmd(o),
		newServeCmd(o),
	)
	return cmd
}

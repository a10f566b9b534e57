package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch new alerts once and deliver them as incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := o.Config

			api, err := o.api(ctx)
			if err != nil {
				return err
			}
			st, err := newStore(cfg, o.Logger)
			if err != nil {
				return fmt.Errorf("failed to init store: %w", err)
			}
			defer st.Close()

			sink, err := openSink(cfg, o.Logger)
			if err != nil {
				return err
			}
			defer sink.Close()

			fetcher, err := newFetcher(api, st, sink.Sink, cfg, o.Logger)
			if err != nil {
				return err
			}
			incs, err := fetcher.FetchOnce(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(incs) == 0 {
				fmt.Fprintln(out, renderWarn("no new alerts"))
				return nil
			}
			for _, inc := range incs {
				fmt.Fprintf(out, "%s %s\n", muted.Render(inc.Occurred), inc.Name)
			}
			fmt.Fprintln(out, renderOK(fmt.Sprintf("%d incident(s) fetched", len(incs))))
			return nil
		},
	}
}

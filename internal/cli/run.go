package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Checker-Finance/tanium-adapter/internal/commands"
)

func newCommandsCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the available commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, header.Render("Commands"))
			for _, n := range commands.NewRegistry(nil, o.Logger).Names() {
				fmt.Fprintln(out, "  "+string(n))
			}
			return nil
		},
	}
}

func newRunCmd(o *Options) *cobra.Command {
	var (
		asJSON bool
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "run <command> [key=value ...]",
		Short: "Run one command",
		Long: `Run one Threat Response command. Arguments are passed as key=value
pairs, for example:

  tanium-adapter run tanium-tr-get-alert-by-id alert-id=42
  tanium-adapter run tanium-tr-list-alerts state=unresolved limit=10 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			api, err := o.api(cmd.Context())
			if err != nil {
				return err
			}
			res, err := commands.NewRegistry(api, o.Logger).Run(cmd.Context(), commands.Name(args[0]), cmdArgs)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), res, asJSON, outDir)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for downloaded files")
	return cmd
}

func newDownloadCmd(o *Options) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "download <file_id>",
		Short: "Save a collected file to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := o.api(cmd.Context())
			if err != nil {
				return err
			}
			res, err := commands.NewRegistry(api, o.Logger).Run(cmd.Context(), commands.GetDownloadedFile,
				commands.Args{"file_id": args[0]})
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), res, false, outDir)
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "Directory to write the file to")
	return cmd
}

// parseArgs turns key=value pairs into command arguments. A repeated key
// keeps the last value.
func parseArgs(pairs []string) (commands.Args, error) {
	args := commands.Args{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not in key=value form", p)
		}
		args[k] = v
	}
	return args, nil
}

func writeResult(out io.Writer, res *commands.Result, asJSON bool, outDir string) error {
	if res.File != nil {
		path := filepath.Join(outDir, filepath.Base(res.File.Name))
		if err := os.WriteFile(path, res.File.Content, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintln(out, renderOK(fmt.Sprintf("saved %s (%d bytes)", path, len(res.File.Content))))
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, res.Readable)
	return nil
}

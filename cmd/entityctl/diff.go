package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/entitykit/internal/diff"
)

var (
	diffFormat  string
	diffChanged bool
	diffIgnore  []string
	diffOut     string
)

var diffCmd = &cobra.Command{
	Use:   "diff [version-a] [version-b]",
	Short: "Compare two snapshots of the same entity",
	Long: `Compares two snapshots path by path. Every path is listed, changed ones marked;
use --changed for a delta-only view and --ignore to drop paths matching a glob.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		versions, closeFn, err := openVersions(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		a, err := versions.GetString(ctx, args[0])
		if err != nil {
			return err
		}
		b, err := versions.GetString(ctx, args[1])
		if err != nil {
			return err
		}
		if a.EntityType != b.EntityType || a.EntityKey != b.EntityKey {
			fmt.Fprintf(os.Stderr, "warning: comparing %s#%s with %s#%s\n", a.EntityType, a.EntityKey, b.EntityType, b.EntityKey)
		}

		report := diff.Compare(a, b).Without(slices.Concat(cfg.Diff.Ignore, diffIgnore)...)
		if diffChanged {
			report = report.OnlyChanged()
		}

		renderer := diff.Renderer{TruncateAfter: cfg.Diff.TruncateAfter}
		write := func(w io.Writer) error {
			return diff.Write(w, report, renderer, diffFormat)
		}
		if diffOut == "" {
			if strings.EqualFold(diffFormat, diff.FormatXLSX) {
				return fmt.Errorf("xlsx output needs --out")
			}
			return write(os.Stdout)
		}
		f, err := os.Create(diffOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", diffOut, err)
		}
		return writeAndClose(f, write)
	},
}

// writeAndClose runs write against w and closes it. A close failure is returned when the
// write itself succeeded, since buffered bytes may not have reached the file.
func writeAndClose(w io.WriteCloser, write func(io.Writer) error) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
		}
	}()
	return write(w)
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", diff.FormatText, "Output format: "+strings.Join(diff.Formats, ", "))
	diffCmd.Flags().BoolVar(&diffChanged, "changed", false, "Only list changed paths")
	diffCmd.Flags().StringSliceVar(&diffIgnore, "ignore", nil, "Path glob to leave out (repeatable)")
	diffCmd.Flags().StringVarP(&diffOut, "out", "o", "", "Write to a file instead of stdout")
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history [type] [key]",
	Short: "List the snapshots of one entity, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		versions, closeFn, err := openVersions(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		snapshots, err := versions.History(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		if historyJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(snapshots)
		}

		if len(snapshots) == 0 {
			fmt.Printf("No versions for %s %s\n", args[0], args[1])
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tID\tCREATED")
		for _, s := range snapshots {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Sequence, s.ID, s.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show [version-id]",
	Short: "Print the fields captured by one snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		versions, closeFn, err := openVersions(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		snapshot, err := versions.GetString(ctx, args[0])
		if err != nil {
			return err
		}

		switch showFormat {
		case "json":
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(snapshot.Fields)
		case "yaml":
			fmt.Printf("# %s\n", snapshot.Label())
			return yaml.NewEncoder(os.Stdout).Encode(snapshot.Fields)
		default:
			return fmt.Errorf("unsupported format %q (want json or yaml)", showFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "yaml", "Output format: json or yaml")
}

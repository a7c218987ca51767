package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"headerswitch/logger"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Writes the active profile as a declarative rules.json",
	Long: `Compiles the active profile into the declarative rule list a browser extension can load
as its rules.json, and writes it to stdout or --out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(store.CompiledDirectives(), "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling directives: %w", err)
		}
		data = append(data, '\n')

		if exportOut == "" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(exportOut, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", exportOut, err)
		}
		logger.Info("Cmd: exported profile %q to %s", store.CurrentProfile(), exportOut)
		fmt.Fprintf(os.Stderr, "Wrote %s\n", exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

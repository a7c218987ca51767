package cmd

import (
	"fmt"
	"os"
	"strconv"

	"headerswitch/logger"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage header profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists profiles; the active one is marked",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		state := store.Snapshot()
		active := color.New(color.FgGreen, color.Bold).SprintFunc()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"", "Profile", "Rules", "Enabled"})
		table.SetBorder(true)
		for _, p := range state.Profiles.List() {
			marker, name := "", p.Name
			if p.Name == state.CurrentProfile {
				marker, name = active("*"), active(p.Name)
			}
			enabled := 0
			for _, r := range p.Rules {
				if r.Applicable() {
					enabled++
				}
			}
			table.Append([]string{marker, name, strconv.Itoa(len(p.Rules)), strconv.Itoa(enabled)})
		}
		table.Render()
		return nil
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Creates a profile with one empty rule and selects it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.CreateProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		logger.Info("Cmd: created profile %q", store.CurrentProfile())
		fmt.Printf("Created and selected profile %q\n", store.CurrentProfile())
		return nil
	},
}

var profileRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Renames a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.RenameProfile(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		logger.Info("Cmd: renamed profile %q to %q", args[0], args[1])
		fmt.Printf("Renamed profile %q\n", args[0])
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Deletes a profile (the last one cannot be deleted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.DeleteProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		logger.Info("Cmd: deleted profile %q", args[0])
		fmt.Printf("Deleted profile %q; active profile is %q\n", args[0], store.CurrentProfile())
		return nil
	},
}

var profileSelectCmd = &cobra.Command{
	Use:   "select <name>",
	Short: "Makes a profile the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.SelectProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		logger.Info("Cmd: selected profile %q", args[0])
		fmt.Printf("Active profile is %q\n", args[0])
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileRenameCmd, profileDeleteCmd, profileSelectCmd)
	rootCmd.AddCommand(profileCmd)
}

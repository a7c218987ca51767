package cmd

import (
	"fmt"
	"os"
	"strconv"

	"headerswitch/core"
	"headerswitch/logger"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Edit the header rules of the active profile",
}

func parseRuleIndex(raw string) (int, error) {
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: rule index %q is not a number", core.ErrIndexOutOfRange, raw)
	}
	return index, nil
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the rules of the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Profile %q\n", store.CurrentProfile())
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"#", "Enabled", "Name", "Value"})
		table.SetBorder(true)
		for i, r := range store.ActiveRules() {
			table.Append([]string{strconv.Itoa(i), strconv.FormatBool(r.Enabled), r.Name, r.Value})
		}
		table.Render()
		return nil
	},
}

var ruleAddCmd = &cobra.Command{
	Use:   "add [name] [value]",
	Short: "Appends a rule to the active profile",
	Long: `Appends an enabled rule to the active profile. With arguments, the new rule's name and
value are filled in.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		index, err := store.AddRule(cmd.Context())
		if err != nil {
			return err
		}
		fields := []core.RuleField{core.FieldName, core.FieldValue}
		for i, arg := range args {
			if err := store.UpdateRule(cmd.Context(), index, fields[i], arg); err != nil {
				return err
			}
		}
		logger.Info("Cmd: added rule %d to profile %q", index, store.CurrentProfile())
		fmt.Printf("Added rule %d to profile %q\n", index, store.CurrentProfile())
		return nil
	},
}

var ruleSetCmd = &cobra.Command{
	Use:   "set <index> <enabled|name|value> <value>",
	Short: "Sets one field of a rule in the active profile",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseRuleIndex(args[0])
		if err != nil {
			return err
		}
		field, err := core.ParseRuleField(args[1])
		if err != nil {
			return err
		}
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.UpdateRule(cmd.Context(), index, field, args[2]); err != nil {
			return err
		}
		logger.Info("Cmd: set %s of rule %d in profile %q", field, index, store.CurrentProfile())
		return nil
	},
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <index>",
	Short: "Deletes a rule from the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseRuleIndex(args[0])
		if err != nil {
			return err
		}
		store, err := loadProfileStore(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.DeleteRule(cmd.Context(), index); err != nil {
			return err
		}
		logger.Info("Cmd: deleted rule %d from profile %q", index, store.CurrentProfile())
		return nil
	},
}

func init() {
	ruleCmd.AddCommand(ruleListCmd, ruleAddCmd, ruleSetCmd, ruleDeleteCmd)
	rootCmd.AddCommand(ruleCmd)
}

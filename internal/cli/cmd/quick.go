package cmd

import (
	"fmt"

	"ems3/internal/app"

	"github.com/spf13/cobra"
)

var quickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Manage quick commands for the console",
}

var quickListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved quick commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			commands, err := c.QuickCommands.List()
			if err != nil {
				return err
			}
			if len(commands) == 0 {
				fmt.Println("No quick commands saved.")
				return nil
			}
			for _, qc := range commands {
				if qc.Description != "" {
					fmt.Printf("- %s: %s (%s)\n", qc.Name, qc.Template, qc.Description)
				} else {
					fmt.Printf("- %s: %s\n", qc.Name, qc.Template)
				}
			}
			return nil
		})
	},
}

var quickDescription string

var quickAddCmd = &cobra.Command{
	Use:   "add [name] [command]",
	Short: "Save a quick command; {name} marks a value to fill in",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			qc, err := c.QuickCommands.Add(args[0], args[1], quickDescription)
			if err != nil {
				return err
			}
			fmt.Printf("Quick command %s saved.\n", qc.Name)
			return nil
		})
	},
}

var quickRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Delete a quick command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.QuickCommands.Remove(args[0]); err != nil {
				return err
			}
			fmt.Println("Quick command removed.")
			return nil
		})
	},
}

func init() {
	quickAddCmd.Flags().StringVarP(&quickDescription, "description", "d", "", "What the command does")
	quickCmd.AddCommand(quickListCmd, quickAddCmd, quickRemoveCmd)
	RootCmd.AddCommand(quickCmd)
}

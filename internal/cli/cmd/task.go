package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"ems3/internal/app"
	"ems3/internal/domain"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled tasks",
}

func addTriggerFlags(flags *pflag.FlagSet) {
	flags.String("cron", "", `5-field cron expression or descriptor, e.g. "0 4 * * *" or "@daily"`)
	flags.Int("every", 0, "Interval in seconds")
	flags.String("at", "", `One-shot time, RFC3339 or "2006-01-02 15:04:05" local`)
}

// triggerFromFlags builds the trigger from exactly one of --cron, --every, --at.
func triggerFromFlags(flags *pflag.FlagSet) (domain.Trigger, error) {
	var kinds []string
	var value string
	if flags.Changed("cron") {
		kinds = append(kinds, string(domain.TriggerCron))
		value, _ = flags.GetString("cron")
	}
	if flags.Changed("every") {
		kinds = append(kinds, string(domain.TriggerInterval))
		n, _ := flags.GetInt("every")
		value = strconv.Itoa(n)
	}
	if flags.Changed("at") {
		kinds = append(kinds, string(domain.TriggerOnce))
		value, _ = flags.GetString("at")
	}
	if len(kinds) != 1 {
		return domain.Trigger{}, errors.New("pass exactly one of --cron, --every or --at")
	}
	return domain.ParseTrigger(kinds[0], value)
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks with their next run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.Scheduler.Load(); err != nil {
				return err
			}
			views := c.Scheduler.List()
			if len(views) == 0 {
				fmt.Println("No scheduled tasks.")
				return nil
			}
			fmt.Println("Tasks:")
			for _, v := range views {
				next := "-"
				if v.NextRun != nil {
					next = v.NextRun.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Printf("- %s (%s) %s on %s, %s, next: %s\n", v.Name, v.ID, v.Action, v.ServerID, v.Trigger, next)
				if v.LastRun != nil {
					status := "ok"
					if v.LastError != "" {
						status = v.LastError
					}
					fmt.Printf("    last run %s: %s\n", v.LastRun.Local().Format("2006-01-02 15:04:05"), status)
				}
			}
			return nil
		})
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a command, restart or backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		trigger, err := triggerFromFlags(flags)
		if err != nil {
			return err
		}
		actionName, _ := flags.GetString("action")
		action, err := domain.ParseTaskAction(actionName)
		if err != nil {
			return err
		}

		task := domain.ScheduledTask{Action: action, Trigger: trigger}
		task.ServerID, _ = flags.GetString("server")
		task.Name, _ = flags.GetString("name")
		task.Command, _ = flags.GetString("command")
		task.KeepBackups, _ = flags.GetInt("keep")

		return withContainer(func(c *app.Container) error {
			id, err := c.Scheduler.Create(task)
			if err != nil {
				return err
			}
			fmt.Printf("Task scheduled: %s\n", id)
			fmt.Println("A running `ems3 run` picks it up on its next start.")
			return nil
		})
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Cancel a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.Scheduler.Load(); err != nil {
				return err
			}
			if err := c.Scheduler.Cancel(args[0]); err != nil {
				return err
			}
			fmt.Println("Task removed.")
			return nil
		})
	},
}

var taskRescheduleCmd = &cobra.Command{
	Use:   "reschedule [id]",
	Short: "Change the trigger of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trigger, err := triggerFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		return withContainer(func(c *app.Container) error {
			if err := c.Scheduler.Load(); err != nil {
				return err
			}
			if err := c.Scheduler.Reschedule(args[0], trigger); err != nil {
				return err
			}
			fmt.Printf("Task rescheduled: %s\n", trigger)
			return nil
		})
	},
}

var taskRenameCmd = &cobra.Command{
	Use:   "rename [id] [name]",
	Short: "Rename a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.Scheduler.Load(); err != nil {
				return err
			}
			if err := c.Scheduler.Rename(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Task renamed.")
			return nil
		})
	},
}

func init() {
	addTriggerFlags(taskAddCmd.Flags())
	taskAddCmd.Flags().String("server", "", "Target server id")
	taskAddCmd.Flags().String("action", "", "command, restart or backup")
	taskAddCmd.Flags().String("command", "", "Console command (action command)")
	taskAddCmd.Flags().Int("keep", 0, "Backups to keep after a scheduled backup (0 keeps all)")
	taskAddCmd.Flags().String("name", "", "Task name")
	taskAddCmd.MarkFlagRequired("server")
	taskAddCmd.MarkFlagRequired("action")

	addTriggerFlags(taskRescheduleCmd.Flags())

	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskRemoveCmd, taskRescheduleCmd, taskRenameCmd)
	RootCmd.AddCommand(taskCmd)
}

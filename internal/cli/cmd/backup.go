package cmd

import (
	"fmt"

	"ems3/internal/app"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [serverId]",
	Short: "Create a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			rec, err := c.BackupManager.CreateBackup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Backup created: %s (%.2f MB)\n", rec.Name, rec.SizeMB)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list [serverId]",
	Short: "List backups, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			backups, err := c.BackupManager.ListBackups(args[0])
			if err != nil {
				return err
			}
			fmt.Println("Backups:")
			for _, b := range backups {
				fmt.Printf("- %s (%.2f MB) %s\n", b.Name, b.SizeMB, b.Timestamp.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete [serverId] [name]",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.BackupManager.DeleteBackup(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Backup deleted successfully.")
			return nil
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [serverId] [name]",
	Short: "Replace the server files with a backup (server must be stopped)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.BackupManager.RestoreBackup(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Backup restored successfully.")
			return nil
		})
	},
}

var pruneKeep int

var backupPruneCmd = &cobra.Command{
	Use:   "prune [serverId]",
	Short: "Delete all but the newest backups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			removed, err := c.BackupManager.Prune(args[0], pruneKeep)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d backup(s).\n", len(removed))
			for _, name := range removed {
				fmt.Printf("- %s\n", name)
			}
			return nil
		})
	},
}

func init() {
	backupPruneCmd.Flags().IntVar(&pruneKeep, "keep", 5, "Number of backups to keep")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupDeleteCmd, backupRestoreCmd, backupPruneCmd)
	RootCmd.AddCommand(backupCmd)
}

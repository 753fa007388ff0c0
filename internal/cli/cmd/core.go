package cmd

import (
	"context"
	"fmt"
	"time"

	"ems3/internal/app"
	"ems3/internal/domain"

	"github.com/spf13/cobra"
)

var coreCmd = &cobra.Command{
	Use:   "core",
	Short: "Browse the core catalog and install cores",
}

var coreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available cores",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			cores, err := c.Catalog.Cores(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("\n--- AVAILABLE CORES ---")
			for _, core := range cores {
				fmt.Printf("- %s (%s)\n", core.Name, core.Tag)
			}
			return nil
		})
	},
}

var coreVersionsCmd = &cobra.Command{
	Use:   "versions [core]",
	Short: "List game versions of a core, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			versions, err := c.Catalog.Versions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Println(v)
			}
			return nil
		})
	},
}

var coreBuildsCmd = &cobra.Command{
	Use:   "builds [core] [mc-version]",
	Short: "List builds of a core for a game version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			builds, err := c.Catalog.Builds(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			for _, b := range builds {
				fmt.Printf("- %s (%s) %s\n", b.CoreVersion, b.Name, b.UpdateTime)
			}
			return nil
		})
	},
}

var coreInstallCmd = &cobra.Command{
	Use:   "install [serverId] [core] [mc-version] [build]",
	Short: "Download a core into a server and make it the server's core",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go c.Downloads.Run(ctx)

			req := domain.DownloadRequest{ServerID: args[0], Core: args[1], MCVersion: args[2], BuildVersion: args[3]}
			filename, err := c.Downloads.Enqueue(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("Downloading %s\n", filename)

			last := time.Time{}
			err = c.WaitDownload(ctx, req.ServerID, func(t domain.DownloadTask) {
				if time.Since(last) > 500*time.Millisecond {
					fmt.Printf("\r[Progress] %-40s", t.Message)
					last = time.Now()
				}
			})
			fmt.Println()
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			fmt.Println("Core installed.")
			return nil
		})
	},
}

func init() {
	coreCmd.AddCommand(coreListCmd, coreVersionsCmd, coreBuildsCmd, coreInstallCmd)
	RootCmd.AddCommand(coreCmd)
}

package cmd

import (
	"fmt"

	"ems3/internal/app"
	"ems3/internal/domain"
	"ems3/internal/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage servers",
}

var createReq server.CreateRequest

var serverCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			srv, err := c.ServerManager.CreateServer(createReq)
			if err != nil {
				return err
			}
			fmt.Printf("Server created: %s (%s)\n", srv.Name, srv.ID)
			fmt.Printf("Directory: %s\n", srv.Dir)
			fmt.Printf("Port:      %d\n", srv.Port)
			fmt.Println("Install a core with: ems3 core install", srv.ID, "<core> <mc-version> <build>")
			return nil
		})
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			servers, err := c.ServerManager.ListServers()
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Println("No servers yet.")
				return nil
			}
			fmt.Println("Servers:")
			for _, s := range servers {
				fmt.Printf("- %s (%s) Port: %d Core: %s [%s]\n", s.Name, s.ID, s.Port, s.CoreFile, s.CoreType)
			}
			return nil
		})
	},
}

var serverDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a server, its files and its scheduled tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.ServerManager.DeleteServer(args[0]); err != nil {
				return err
			}
			fmt.Println("Server deleted successfully.")
			return nil
		})
	},
}

var serverSetCmd = &cobra.Command{
	Use:   "set [id]",
	Short: "Change server settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch domain.ServerPatch
		flags := cmd.Flags()
		if flags.Changed("name") {
			v, _ := flags.GetString("name")
			patch.Name = &v
		}
		if flags.Changed("java") {
			v, _ := flags.GetString("java")
			patch.JavaPath = &v
		}
		if flags.Changed("args") {
			v, _ := flags.GetString("args")
			patch.JavaArgs = &v
		}
		if flags.Changed("port") {
			v, _ := flags.GetInt("port")
			patch.Port = &v
		}
		if patch.Empty() {
			return fmt.Errorf("nothing to change: pass --name, --port, --java or --args")
		}

		return withContainer(func(c *app.Container) error {
			srv, err := c.ServerManager.UpdateSettings(args[0], patch)
			if err != nil {
				return err
			}
			fmt.Printf("Updated %s: port %d, java %s %s\n", srv.Name, srv.Port, srv.JavaPath, srv.JavaArgs)
			return nil
		})
	},
}

func init() {
	serverCreateCmd.Flags().StringVar(&createReq.Name, "name", "", "Server name")
	serverCreateCmd.Flags().IntVar(&createReq.Port, "port", 0, "Port (default: first free port of the configured range)")
	serverCreateCmd.Flags().StringVar(&createReq.JavaPath, "java", "", "Java executable")
	serverCreateCmd.Flags().StringVar(&createReq.JavaArgs, "args", "", "JVM arguments")
	serverCreateCmd.Flags().StringVar(&createReq.CoreFile, "core-file", "", "Core jar file name")
	serverCreateCmd.Flags().StringVar(&createReq.CoreType, "core-type", "", "Core type label")
	serverCreateCmd.MarkFlagRequired("name")

	serverSetCmd.Flags().String("name", "", "New name")
	serverSetCmd.Flags().Int("port", 0, "New port")
	serverSetCmd.Flags().String("java", "", "Java executable")
	serverSetCmd.Flags().String("args", "", "JVM arguments")

	serverCmd.AddCommand(serverCreateCmd, serverListCmd, serverDeleteCmd, serverSetCmd)
	RootCmd.AddCommand(serverCmd)
}

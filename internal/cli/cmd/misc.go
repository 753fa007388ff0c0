package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"ems3/internal/app"
	"ems3/internal/jvm"

	"github.com/emersion/go-autostart"
	"github.com/spf13/cobra"
)

var javaCmd = &cobra.Command{
	Use:   "java",
	Short: "Java runtime helpers",
}

var javaForMC string

var javaDetectCmd = &cobra.Command{
	Use:   "detect [path]",
	Short: "Check a Java executable (default: java on PATH)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := jvm.DefaultPath
		if len(args) == 1 {
			path = args[0]
		}
		rt, err := jvm.Detect(path)
		if err != nil {
			return err
		}
		fmt.Printf("Path:    %s\n", rt.Path)
		fmt.Printf("Version: %s\n", rt.Version)
		fmt.Printf("Major:   %d\n", rt.Major)

		if javaForMC != "" {
			need := jvm.RequiredFor(javaForMC)
			if rt.Major >= need {
				fmt.Printf("Suitable for Minecraft %s (needs Java %d).\n", javaForMC, need)
			} else {
				fmt.Printf("Too old for Minecraft %s: needs Java %d.\n", javaForMC, need)
			}
		}
		return nil
	},
}

var javaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the Java on PATH and the registered Java paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			auto, installs, err := c.JavaPaths.List()
			if err != nil {
				return err
			}
			if auto != nil {
				fmt.Printf("PATH:  %s  %s\n", auto.Path, auto)
			} else {
				fmt.Println("PATH:  no java found")
			}
			for _, j := range installs {
				fmt.Printf("- %s  %s (Java %d), added %s\n", j.Path, j.Version, j.Major, j.AddedAt.Format("2006-01-02 15:04"))
			}
			return nil
		})
	},
}

var javaAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register a Java executable after checking it runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			j, err := c.JavaPaths.Add(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Java %d ready at %s\n", j.Major, j.Path)
			return nil
		})
	},
}

var javaRemoveCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Unregister a Java path no server uses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			if err := c.JavaPaths.Remove(args[0]); err != nil {
				return err
			}
			fmt.Println("Java path removed.")
			return nil
		})
	},
}

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Run `ems3 run` when you log in",
}

func autostartApp() (*autostart.App, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, err
	}
	execArgs := []string{exe, "run"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		execArgs = append(execArgs, "--config", abs)
	}
	return &autostart.App{
		Name:        "ems3",
		DisplayName: "ems3 game server supervisor",
		Exec:        execArgs,
	}, nil
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Start the daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := autostartApp()
		if err != nil {
			return err
		}
		if a.IsEnabled() {
			fmt.Println("Autostart is already enabled.")
			return nil
		}
		if err := a.Enable(); err != nil {
			return err
		}
		fmt.Println("Autostart enabled.")
		return nil
	},
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop starting the daemon at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := autostartApp()
		if err != nil {
			return err
		}
		if !a.IsEnabled() {
			fmt.Println("Autostart is not enabled.")
			return nil
		}
		if err := a.Disable(); err != nil {
			return err
		}
		fmt.Println("Autostart disabled.")
		return nil
	},
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether autostart is enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := autostartApp()
		if err != nil {
			return err
		}
		if a.IsEnabled() {
			fmt.Println("Autostart: enabled")
		} else {
			fmt.Println("Autostart: disabled")
		}
		return nil
	},
}

func init() {
	javaDetectCmd.Flags().StringVar(&javaForMC, "mc", "", "Also check against this Minecraft version")
	javaCmd.AddCommand(javaDetectCmd, javaListCmd, javaAddCmd, javaRemoveCmd)

	autostartCmd.AddCommand(autostartEnableCmd, autostartDisableCmd, autostartStatusCmd)

	RootCmd.AddCommand(javaCmd, autostartCmd)
}

package main

import "ems3/internal/cli/cmd"

func main() {
	cmd.Execute()
}

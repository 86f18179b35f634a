package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/taskengine/internal/cli"
)

func main() {
	cmd := cli.BuildCLI()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

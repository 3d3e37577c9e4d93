package main

import (
	"os"

	"github.com/danieljhkim/stagemerge/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		os.Exit(cli.Report(os.Stderr, err))
	}
}

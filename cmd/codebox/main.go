package main

import (
	"os"

	"github.com/mixelka/codebox/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

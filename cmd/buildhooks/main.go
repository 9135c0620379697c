package main

import (
	"os"

	"github.com/flathub-infra/buildhooks/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/randalmurphal/claudebridge/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

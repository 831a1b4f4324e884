package main

import (
	"os"

	"github.com/jwalitptl/ward-api/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/drblury/faultline/cmd/faultline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

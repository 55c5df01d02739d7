package main

import (
	"os"

	"github.com/mhalvorsen/sockpool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

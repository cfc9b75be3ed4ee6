package main

import (
	"os"

	"github.com/misalcedo/fermentation/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

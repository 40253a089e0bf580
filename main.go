package main

import (
	"os"

	"stackpilot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

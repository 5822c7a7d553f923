package main

import (
	"os"

	"poitree/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}

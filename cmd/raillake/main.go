// Package main is the entry point for the raillake binary.
package main

import (
	"os"

	cli "raillake/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

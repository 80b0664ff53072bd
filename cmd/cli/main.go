// Package main is the entry point for the orders CLI binary.
package main

import (
	"os"

	"redshift-orders/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

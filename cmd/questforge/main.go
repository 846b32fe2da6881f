// Package main is the single-binary entrypoint for questforge.
package main

import "github.com/questforge/questforge/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

// Command salesql is the operator CLI: ask questions, inspect the sales
// schema, and drop cached distinct values without running the server.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

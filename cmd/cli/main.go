package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ucext/citizenconnect/cmd/cli/commands"
)

func main() {
	// A missing .env file is fine, the flags and environment still apply
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

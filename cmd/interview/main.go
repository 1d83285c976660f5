// interview is the command line client for the interview gateway.
package main

import (
	"fmt"
	"os"

	"github.com/mbio-ai/interviewkit/internal/cli"
	"github.com/mbio-ai/interviewkit/internal/dotenv"
)

func main() {
	if err := dotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "interview: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cli.NewRootCmd(cli.DefaultDependencies())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "interview: %v\n", err)
		os.Exit(1)
	}
}

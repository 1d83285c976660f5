// Package cli implements the interview command line client.
package cli

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbio-ai/interviewkit/pkg/interview/transport"
)

const version = "0.3.0"

// Dependencies lets tests swap the CLI's collaborators.
type Dependencies struct {
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	HTTPClient *http.Client

	// NewAdapter builds the room transport for the join command.
	NewAdapter func(transport.RoomConfig) transport.Adapter

	// Notify registers for interrupt signals; tests inject their own.
	Notify func(chan<- os.Signal)
}

func DefaultDependencies() *Dependencies {
	return &Dependencies{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Stdin:      os.Stdin,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		NewAdapter: func(cfg transport.RoomConfig) transport.Adapter {
			return transport.NewRoom(cfg)
		},
		Notify: notifyInterrupt,
	}
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "interview",
		Short:         "Join and inspect live voice interview sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version
	rootCmd.SetOut(deps.Stdout)
	rootCmd.SetErr(deps.Stderr)

	rootCmd.AddCommand(NewJoinCmd(deps))
	rootCmd.AddCommand(NewSessionsCmd(deps))

	return rootCmd
}

package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbio-ai/interviewkit/pkg/interview/session"
	"github.com/mbio-ai/interviewkit/pkg/interview/token"
	"github.com/mbio-ai/interviewkit/pkg/interview/transport"
)

func NewJoinCmd(deps *Dependencies) *cobra.Command {
	var (
		server     string
		apiKey     string
		name       string
		room       string
		briefing   string
		questions  int
		micPath    string
		sampleRate int
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join an interview room and follow it live",
		Long: "Join an interview room, print the live transcript and state transitions,\n" +
			"and forward lines typed on stdin as notes. Type /complete to end the\n" +
			"interview early; Ctrl+C disconnects.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				return fmt.Errorf("--server is required")
			}
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			var mic transport.MicSource
			if micPath != "" {
				r, err := openMicReader(deps, micPath)
				if err != nil {
					return err
				}
				mic = newPCMSource(r, sampleRate, 1)
			}

			return runJoin(cmd, deps, joinOptions{
				server:     server,
				apiKey:     apiKey,
				name:       name,
				room:       room,
				briefing:   briefing,
				questions:  questions,
				mic:        mic,
				sampleRate: sampleRate,
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", envDefault("INTERVIEW_SERVER", ""), "Gateway base URL (e.g. https://interviews.example.com)")
	cmd.Flags().StringVar(&apiKey, "api-key", envDefault("INTERVIEW_API_KEY", ""), "Gateway API key")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Participant display name")
	cmd.Flags().StringVar(&room, "room", "", "Room to join (default: a fresh room per attempt)")
	cmd.Flags().StringVar(&briefing, "briefing", "", "Structured interview briefing forwarded to the agent")
	cmd.Flags().IntVarP(&questions, "questions", "q", 0, "Expected question count (0 = unbounded)")
	cmd.Flags().StringVar(&micPath, "mic", "", "Raw s16le PCM source for the microphone track (path, or - for stdin)")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 48000, "Microphone PCM sample rate")

	return cmd
}

type joinOptions struct {
	server     string
	apiKey     string
	name       string
	room       string
	briefing   string
	questions  int
	mic        transport.MicSource
	sampleRate int
}

func runJoin(cmd *cobra.Command, deps *Dependencies, opts joinOptions) error {
	logger := slog.New(slog.NewTextHandler(deps.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	adapter := deps.NewAdapter(transport.RoomConfig{
		SampleRate: opts.sampleRate,
		Mic:        opts.mic,
		Logger:     logger,
	})
	tokens := token.NewClient(opts.server, authedClient(deps.HTTPClient, opts.apiKey))

	results := make(chan session.Result, 1)
	ctrl, err := session.New(session.Dependencies{
		Tokens:  tokens,
		Adapter: adapter,
		Logger:  logger,
		Config: session.Config{
			ParticipantName: opts.name,
			RoomName:        opts.room,
			Observer:        opts.mic == nil,
			TotalQuestions:  opts.questions,
			Briefing:        opts.briefing,
		},
		OnComplete: func(r session.Result) { results <- r },
		OnStateChange: func(s session.State) {
			fmt.Fprintf(deps.Stdout, "state: %s\n", s)
		},
	})
	if err != nil {
		return err
	}

	if err := ctrl.Start(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "joined session %s\n", ctrl.SessionID())

	go forwardNotes(deps, ctrl)

	sigCh := make(chan os.Signal, 1)
	deps.Notify(sigCh)
	done := ctrl.Done()
	select {
	case <-sigCh:
		fmt.Fprintln(deps.Stdout, "disconnecting")
		ctrl.Disconnect()
		<-done
	case <-done:
	}

	select {
	case res := <-results:
		printResult(deps, res)
	case <-time.After(time.Second):
		if msg := ctrl.Err(); msg != "" {
			return fmt.Errorf("session ended with error: %s", msg)
		}
		fmt.Fprintln(deps.Stdout, "session ended without completing")
	}
	return nil
}

// forwardNotes turns stdin lines into session notes until stdin closes.
func forwardNotes(deps *Dependencies, ctrl *session.Controller) {
	sc := bufio.NewScanner(deps.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "/complete" {
			ctrl.Complete()
			continue
		}
		if err := ctrl.SendNote(line); err != nil {
			fmt.Fprintf(deps.Stderr, "note not sent: %v\n", err)
		}
	}
}

func printResult(deps *Dependencies, res session.Result) {
	fmt.Fprintf(deps.Stdout, "\ninterview complete: %s\n", res.SessionID)
	if res.TotalQuestions > 0 {
		fmt.Fprintf(deps.Stdout, "answered %d of %d questions\n", res.AnsweredCount, res.TotalQuestions)
	} else {
		fmt.Fprintf(deps.Stdout, "answered %d questions\n", res.AnsweredCount)
	}
	if res.Phase != "" {
		fmt.Fprintf(deps.Stdout, "final phase: %s\n", res.Phase)
	}
	for _, u := range res.Transcript {
		fmt.Fprintf(deps.Stdout, "[%s] %s: %s\n", u.At.Format("15:04:05"), u.Role, u.Text)
	}
	for _, n := range res.Notes {
		fmt.Fprintf(deps.Stdout, "note (%s): %s\n", n.At.Format("15:04:05"), n.Text)
	}
}

func openMicReader(deps *Dependencies, path string) (io.Reader, error) {
	if path == "-" {
		return deps.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open microphone source: %w", err)
	}
	return f, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

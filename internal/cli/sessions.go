package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbio-ai/interviewkit/pkg/interview/session"
	"github.com/mbio-ai/interviewkit/pkg/interview/store"
)

func NewSessionsCmd(deps *Dependencies) *cobra.Command {
	var (
		server string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect sessions on the gateway",
	}
	cmd.PersistentFlags().StringVar(&server, "server", envDefault("INTERVIEW_SERVER", ""), "Gateway base URL")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", envDefault("INTERVIEW_API_KEY", ""), "Gateway API key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List live and archived sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Live     []session.Snapshot `json:"live"`
				Archived []*store.Record    `json:"archived"`
			}
			if err := getJSON(cmd, deps, server, apiKey, "/v1/sessions", &out); err != nil {
				return err
			}
			if len(out.Live) == 0 && len(out.Archived) == 0 {
				fmt.Fprintln(deps.Stdout, "no sessions")
				return nil
			}
			for _, s := range out.Live {
				fmt.Fprintf(deps.Stdout, "%s\t%s\t%d/%d\t%s\n", s.SessionID, s.State, s.AnsweredCount, s.TotalQuestions, s.Phase)
			}
			for _, r := range out.Archived {
				fmt.Fprintf(deps.Stdout, "%s\t%s\t%d/%d\t(archived)\n", r.ID, r.State, r.AnsweredCount, r.TotalQuestions)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show one session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := getJSON(cmd, deps, server, apiKey, "/v1/sessions/"+args[0], &out); err != nil {
				return err
			}
			var pretty strings.Builder
			if err := json.Indent(&pretty, out, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(deps.Stdout, pretty.String())
			return nil
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(get)
	return cmd
}

func getJSON(cmd *cobra.Command, deps *Dependencies, server, apiKey, path string, out any) error {
	if server == "" {
		return fmt.Errorf("--server is required")
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(server, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := authedClient(deps.HTTPClient, apiKey).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// status.go implements "genstory status", which asks a running server
// about one session.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhs007/genstory/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session on a running server",
	Long: `Query a running "genstory serve" for the phase, progress and retry
state of a session.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var serverFlag string

func init() {
	statusCmd.Flags().StringVar(&serverFlag, "server", "", "Server base URL (default: http://host:port from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := serverFlag
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		base = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	view, err := fetchSession(client, base, args[0])
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), view)
	return nil
}

func fetchSession(client *http.Client, base, id string) (*server.SessionView, error) {
	url := strings.TrimRight(base, "/") + "/api/session/" + id
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e server.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var out server.SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &out.Session, nil
}

func printStatus(w io.Writer, v *server.SessionView) {
	fmt.Fprintf(w, "Session %s\n", v.ID)
	fmt.Fprintf(w, "  %-14s %s\n", "user", v.UserID)
	fmt.Fprintf(w, "  %-14s %s\n", "genre", v.Genre)
	phase := v.CurrentPhase
	if v.Running {
		phase += " (running)"
	}
	fmt.Fprintf(w, "  %-14s %s\n", "phase", phase)
	if v.CurrentStage != "" {
		fmt.Fprintf(w, "  %-14s %s\n", "stage", v.CurrentStage)
	}
	fmt.Fprintf(w, "  %-14s %d/%d\n", "questions", v.AnsweredQuestions, v.TotalQuestions)
	fmt.Fprintf(w, "  %-14s %d\n", "runs", v.ConversationCount)
	fmt.Fprintf(w, "  %-14s %d\n", "suggestions", v.InterruptionCount)
	if v.CanRetry {
		reason := ""
		if v.LastError != nil {
			reason = ": " + v.LastError.Error()
		}
		fmt.Fprintf(w, "  %-14s yes%s\n", "can retry", reason)
	}
}

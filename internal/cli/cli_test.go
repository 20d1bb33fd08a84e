package cli

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/zhs007/genstory/internal/config"
)

func setFlag(t *testing.T, p *string, v string) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "genstory.yaml")
	setFlag(t, &configFlag, path)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := runConfigInit(cmd, nil); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if err := runConfigInit(cmd, nil); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second init: got %v", err)
	}

	out.Reset()
	if err := runConfigValidate(cmd, nil); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "Configuration is valid.") {
		t.Errorf("validate output: %q", out.String())
	}
}

func TestLoadConfigFlags(t *testing.T) {
	setFlag(t, &configFlag, "")
	setFlag(t, &logLevelFlag, "debug")
	setFlag(t, &genreFlag, "horror")
	t.Chdir(t.TempDir())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Story.DefaultGenre != "horror" {
		t.Errorf("flags not applied: level %q genre %q", cfg.Logging.Level, cfg.Story.DefaultGenre)
	}

	setFlag(t, &genreFlag, "western")
	if _, err := loadConfig(); err == nil {
		t.Error("unsupported genre should be rejected")
	}
}

func TestReportValidation(t *testing.T) {
	var out bytes.Buffer
	err := reportValidation(&out, config.ValidationResult{
		Valid:    false,
		Errors:   []string{"role front_desk must be enabled"},
		Warnings: []string{"no API key"},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
	for _, want := range []string{"error:   role front_desk must be enabled", "warning: no API key"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPrintRolesAndGenres(t *testing.T) {
	cfg := config.DefaultConfig()
	rc := cfg.Roles[config.RoleCreativeEditor]
	rc.Enabled = false
	cfg.Roles[config.RoleCreativeEditor] = rc

	var out bytes.Buffer
	printRoles(&out, cfg)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("roles: %d lines\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[2], "creative_editor") || !strings.Contains(lines[2], "disabled") {
		t.Errorf("editor line: %q", lines[2])
	}

	out.Reset()
	printGenres(&out, cfg)
	if !strings.Contains(out.String(), "* general") {
		t.Errorf("default genre not marked:\n%s", out.String())
	}
	if got := strings.Count(out.String(), "\n"); got != len(cfg.Story.SupportedGenres) {
		t.Errorf("genres: %d lines", got)
	}
}

func TestFetchSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session/abc":
			w.Write([]byte(`{"success":true,"session":{"id":"abc","userId":"u1","genre":"drama","currentPhase":"halted:critique","answeredQuestions":2,"totalQuestions":5,"canRetry":true,"lastError":{"kind":"network","message":"timeout"},"running":false}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"error":"session not found"}`))
		}
	}))
	defer ts.Close()

	view, err := fetchSession(ts.Client(), ts.URL+"/", "abc")
	if err != nil {
		t.Fatalf("fetchSession: %v", err)
	}
	var out bytes.Buffer
	printStatus(&out, view)
	for _, want := range []string{"Session abc", "halted:critique", "2/5", "yes: network: timeout"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status missing %q:\n%s", want, out.String())
		}
	}

	if _, err := fetchSession(ts.Client(), ts.URL, "nope"); err == nil || !strings.Contains(err.Error(), "404: session not found") {
		t.Errorf("missing session: got %v", err)
	}
}

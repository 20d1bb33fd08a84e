package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed roles/*.md.tmpl
var roleFS embed.FS

//go:embed stages/*.md.tmpl
var stageFS embed.FS

//go:embed intake/welcome.md.tmpl
var IntakeWelcomeTemplate string

//go:embed intake/need_more.md.tmpl
var IntakeNeedMoreTemplate string

//go:embed intake/vague.md.tmpl
var IntakeVagueTemplate string

//go:embed intake/next_question.md.tmpl
var IntakeNextQuestionTemplate string

//go:embed intake/start.md.tmpl
var IntakeStartTemplate string

//go:embed intake/request.md.tmpl
var RequestAckTemplate string

// RoleSystemPrompt returns the built-in system prompt for roleID spoken
// as name, or "" if there is none.
func RoleSystemPrompt(roleID, name string) string {
	data, err := roleFS.ReadFile("roles/" + roleID + ".md.tmpl")
	if err != nil {
		return ""
	}
	tmpl, err := template.New(roleID).Parse(string(data))
	if err != nil {
		return string(data)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Name string }{name}); err != nil {
		return string(data)
	}
	return buf.String()
}

// StageTemplate returns the prompt template source for a pipeline stage.
func StageTemplate(stage string) (string, error) {
	data, err := stageFS.ReadFile("stages/" + stage + ".md.tmpl")
	if err != nil {
		return "", fmt.Errorf("stage template %q: %w", stage, err)
	}
	return string(data), nil
}

// Package orchestrator sequences the story team: it owns the session phase
// machine, runs the requirement intake, executes the stage plan on a
// background goroutine per session and resumes halted runs from their
// checkpoint.
package orchestrator

import (
	"fmt"
	"text/template"

	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/prompts"
)

// Stage names, in plan order.
const (
	StageRequirementAnalysis = "requirement_analysis"
	StageStructureDesign     = "structure_design"
	StageCharacterDesign     = "character_design"
	StageCritique            = "critique"
	StageFinalDecision       = "final_decision"
	StageUserPresentation    = "user_presentation"
)

// Stage is one step of the plan: a single call to the agent in Slot.
type Stage struct {
	Name     string
	Slot     string
	Audience event.Type
	Label    string
	Template string

	tmpl *template.Template
}

type stageSpec struct {
	name     string
	slot     string
	audience event.Type
	label    string
	optional bool
}

var stageCatalog = []stageSpec{
	{StageRequirementAnalysis, config.RoleFrontDesk, event.TypeInternal, "analysing the requirements", false},
	{StageStructureDesign, config.RoleStoryArchitect, event.TypeInternal, "sketching structure options", false},
	{StageCharacterDesign, config.RoleCharacterDesigner, event.TypeInternal, "designing characters", false},
	{StageCritique, config.RoleCreativeEditor, event.TypeInternal, "reviewing the proposals", true},
	{StageFinalDecision, config.RoleCreativeDirector, event.TypeInternal, "choosing the final proposals", false},
	{StageUserPresentation, config.RoleFrontDesk, event.TypeUserMessage, "preparing the proposals for you", false},
}

// BuildPlan returns the ordered stages for the enabled roles. Optional
// stages are dropped when their role is disabled; a disabled required role
// is an error.
func BuildPlan(cfg *config.Config) ([]Stage, error) {
	var plan []Stage
	for _, spec := range stageCatalog {
		if !cfg.RoleEnabled(spec.slot) {
			if spec.optional {
				continue
			}
			return nil, fmt.Errorf("stage %s requires role %s, which is not enabled", spec.name, spec.slot)
		}

		src, err := prompts.StageTemplate(spec.name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(spec.name).Option("missingkey=zero").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parsing template for %s: %w", spec.name, err)
		}

		plan = append(plan, Stage{
			Name:     spec.name,
			Slot:     spec.slot,
			Audience: spec.audience,
			Label:    spec.label,
			Template: src,
			tmpl:     tmpl,
		})
	}
	return plan, nil
}

// StageIndex returns the position of name in plan, or -1.
func StageIndex(plan []Stage, name string) int {
	for i, st := range plan {
		if st.Name == name {
			return i
		}
	}
	return -1
}

// StageNames lists the stage names of plan in order.
func StageNames(plan []Stage) []string {
	names := make([]string, len(plan))
	for i, st := range plan {
		names[i] = st.Name
	}
	return names
}

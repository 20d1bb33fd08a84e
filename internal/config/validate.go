package config

import (
	"fmt"
	"sort"
)

// ValidationResult is the outcome of Validate. Errors make the config
// unusable; warnings describe degraded but working setups.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// pipelineRoles must be enabled for the collaboration stages to run.
var pipelineRoles = []string{RoleFrontDesk, RoleStoryArchitect, RoleCharacterDesigner, RoleCreativeDirector}

// Validate checks the config for missing roles, model settings and genres.
func (c *Config) Validate() ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	for _, id := range pipelineRoles {
		if !c.RoleEnabled(id) {
			res.Errors = append(res.Errors, fmt.Sprintf("role %s is required and must be enabled", id))
		}
	}
	if !c.RoleEnabled(RoleCreativeEditor) {
		res.Warnings = append(res.Warnings, "creative_editor is disabled; the critique stage will be skipped")
	}

	ids := make([]string, 0, len(c.Roles))
	for id := range c.Roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		role := c.Roles[id]
		if !role.Enabled {
			continue
		}
		if role.Name == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("role %s has no name", id))
		}
		if role.Model.ModelName == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("role %s has no model_name", id))
		}
		if c.ModelParams(id, "").Provider == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("role %s has no provider", id))
		}
		if c.RolePrompt(id, "") == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("role %s has no system_prompt", id))
		}
		if t := role.Model.Temperature; t < 0 || t > 2 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("role %s temperature %.2f is outside [0, 2]", id, t))
		}
	}

	if !c.IsSupportedGenre(c.Story.DefaultGenre) {
		res.Errors = append(res.Errors, fmt.Sprintf("default genre %q is not in supported_genres", c.Story.DefaultGenre))
	}
	for _, g := range c.Story.SupportedGenres {
		if _, ok := c.Genres[g]; !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("genre %s has no tone configuration", g))
		}
	}

	switch c.Pipeline.FinalPhase {
	case "proposal_selection", "completed":
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("pipeline.final_phase %q must be proposal_selection or completed", c.Pipeline.FinalPhase))
	}

	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("store.driver %q must be memory or sqlite", c.Store.Driver))
	}

	switch c.Agents.Provider {
	case "gemini", "openai":
		if c.Agents.APIKey == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("no API key configured for provider %s", c.Agents.Provider))
		}
	case "echo":
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("agents.provider %q is not supported", c.Agents.Provider))
	}

	res.Valid = len(res.Errors) == 0
	return res
}

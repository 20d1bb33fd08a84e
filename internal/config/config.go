// Package config handles reading and writing genstory.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/zhs007/genstory/prompts"
)

// Role identifiers. Each one names a capability slot in the pipeline.
const (
	RoleFrontDesk         = "front_desk"
	RoleStoryArchitect    = "story_architect"
	RoleCharacterDesigner = "character_designer"
	RoleCreativeEditor    = "creative_editor"
	RoleCreativeDirector  = "creative_director"
)

// DefaultFileName is the config file looked up when --config is not given.
const DefaultFileName = "genstory.yaml"

// Config is the top-level structure for genstory.yaml.
type Config struct {
	Version  int                    `yaml:"version"`
	Server   ServerConfig           `yaml:"server"`
	Store    StoreConfig            `yaml:"store"`
	Logging  LoggingConfig          `yaml:"logging"`
	Pipeline PipelineConfig         `yaml:"pipeline"`
	Agents   AgentsConfig           `yaml:"agents"`
	Story    StoryConfig            `yaml:"story"`
	Roles    map[string]RoleConfig  `yaml:"roles"`
	Genres   map[string]GenreConfig `yaml:"genres"`
}

// ServerConfig controls the HTTP transport.
type ServerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
}

// StoreConfig selects the session store implementation.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" | "sqlite"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig controls operational and audit logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // "json" | "text"
	AuditDir string `yaml:"audit_dir"`
}

// PipelineConfig tunes the intake and collaboration flow.
type PipelineConfig struct {
	FinalPhase        string `yaml:"final_phase"` // "proposal_selection" | "completed"
	VagueThreshold    int    `yaml:"vague_threshold"`
	MinAnswersToStart int    `yaml:"min_answers_to_start"`
	MaxHistoryTurns   int    `yaml:"max_history_turns"`
}

// AgentsConfig holds settings shared by every role's LLM client.
type AgentsConfig struct {
	Provider               string `yaml:"provider"` // "gemini" | "openai" | "echo"
	BaseURL                string `yaml:"base_url"`
	APIKey                 string `yaml:"api_key,omitempty"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	MaxAttempts            int    `yaml:"max_attempts"`
	BackoffMs              int    `yaml:"backoff_ms"`
	BreakerThreshold       int    `yaml:"breaker_threshold"`
	BreakerCooldownSeconds int    `yaml:"breaker_cooldown_seconds"`
}

// StoryConfig lists the genres the studio accepts.
type StoryConfig struct {
	DefaultGenre    string   `yaml:"default_genre"`
	SupportedGenres []string `yaml:"supported_genres"`
}

// RoleConfig describes one team member.
type RoleConfig struct {
	Name               string             `yaml:"name" json:"name"`
	DisplayName        string             `yaml:"display_name" json:"displayName"`
	Emoji              string             `yaml:"emoji" json:"emoji"`
	Enabled            bool               `yaml:"enabled" json:"enabled"`
	Model              ModelConfig        `yaml:"model" json:"model"`
	SystemPrompt       string             `yaml:"system_prompt,omitempty" json:"-"`
	CommunicationStyle CommunicationStyle `yaml:"communication_style" json:"communicationStyle"`
}

// ModelConfig is the parameter bundle passed to the LLM for a role.
type ModelConfig struct {
	Provider    string  `yaml:"provider,omitempty" json:"provider,omitempty"`
	ModelName   string  `yaml:"model_name" json:"modelName"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"maxTokens"`
	TopP        float64 `yaml:"top_p" json:"topP"`
	TopK        int     `yaml:"top_k" json:"topK"`
}

// CommunicationStyle is descriptive metadata shown in role listings.
type CommunicationStyle struct {
	Tone       string `yaml:"tone" json:"tone"`
	Formality  string `yaml:"formality" json:"formality"`
	Creativity string `yaml:"creativity" json:"creativity"`
}

// GenreConfig adjusts prompts and model parameters for a genre.
type GenreConfig struct {
	Description     string            `yaml:"description" json:"description"`
	Keywords        []string          `yaml:"keywords" json:"keywords"`
	Tone            ToneAdjustments   `yaml:"tone" json:"toneAdjustments"`
	PromptModifiers map[string]string `yaml:"prompt_modifiers" json:"promptModifiers"`
}

// ToneAdjustments are multipliers in (0, 1].
type ToneAdjustments struct {
	Creativity float64 `yaml:"creativity" json:"creativity"`
	Logic      float64 `yaml:"logic" json:"logic"`
	Emotion    float64 `yaml:"emotion" json:"emotion"`
}

// ReadConfig reads the YAML file at path and overlays it on DefaultConfig.
// A role or genre present in the file replaces the default entry with the
// same key as a whole.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Load reads path when it is non-empty, falls back to defaults otherwise,
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = ReadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// WriteConfig writes cfg to path, creating the parent directory if needed.
func WriteConfig(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("GENSTORY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := getenv("GENSTORY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("GENSTORY_PROVIDER"); v != "" {
		cfg.Agents.Provider = v
	}
	if cfg.Agents.APIKey == "" {
		switch cfg.Agents.Provider {
		case "gemini":
			cfg.Agents.APIKey = getenv("GEMINI_API_KEY")
		case "openai":
			cfg.Agents.APIKey = getenv("OPENAI_API_KEY")
		}
	}
}

// Role returns the configuration for roleID.
func (c *Config) Role(roleID string) (RoleConfig, bool) {
	r, ok := c.Roles[roleID]
	return r, ok
}

// RoleEnabled reports whether roleID exists and is enabled.
func (c *Config) RoleEnabled(roleID string) bool {
	r, ok := c.Roles[roleID]
	return ok && r.Enabled
}

// EnabledRoles returns the enabled role IDs in sorted order.
func (c *Config) EnabledRoles() []string {
	var ids []string
	for id, r := range c.Roles {
		if r.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsSupportedGenre reports whether genre is in story.supported_genres.
func (c *Config) IsSupportedGenre(genre string) bool {
	for _, g := range c.Story.SupportedGenres {
		if g == genre {
			return true
		}
	}
	return false
}

// RolePrompt returns the system prompt for roleID with the genre's modifier
// appended. Falls back to the built-in prompt when the config has none.
func (c *Config) RolePrompt(roleID, genre string) string {
	rc := c.Roles[roleID]
	prompt := rc.SystemPrompt
	if prompt == "" {
		name := rc.Name
		if name == "" {
			name = roleID
		}
		prompt = prompts.RoleSystemPrompt(roleID, name)
	}
	if g, ok := c.Genres[genre]; ok {
		if mod := g.PromptModifiers[roleID]; mod != "" {
			prompt += fmt.Sprintf("\n\n[%s requirements]\n%s", genre, mod)
		}
	}
	return prompt
}

// ModelParams returns the role's model parameters with the temperature
// scaled by the genre's creativity factor and clamped to [0.1, 1.0].
func (c *Config) ModelParams(roleID, genre string) ModelConfig {
	m := c.Roles[roleID].Model
	if m.Provider == "" {
		m.Provider = c.Agents.Provider
	}
	if g, ok := c.Genres[genre]; ok && g.Tone.Creativity > 0 {
		m.Temperature = clamp(m.Temperature*g.Tone.Creativity, 0.1, 1.0)
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:             "localhost",
			Port:             3000,
			HeartbeatSeconds: 30,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Pipeline: PipelineConfig{
			FinalPhase:        "proposal_selection",
			VagueThreshold:    10,
			MinAnswersToStart: 2,
			MaxHistoryTurns:   20,
		},
		Agents: AgentsConfig{
			Provider:               "gemini",
			TimeoutSeconds:         120,
			MaxAttempts:            3,
			BackoffMs:              1000,
			BreakerThreshold:       3,
			BreakerCooldownSeconds: 30,
		},
		Story: StoryConfig{
			DefaultGenre: "general",
			SupportedGenres: []string{
				"sci-fi", "fantasy", "romance", "mystery", "adventure",
				"slice-of-life", "horror", "comedy", "drama", "general",
			},
		},
		Roles:  defaultRoles(),
		Genres: defaultGenres(),
	}
}

func defaultRoles() map[string]RoleConfig {
	model := func(temp float64, maxTokens int, topP float64, topK int) ModelConfig {
		return ModelConfig{ModelName: "gemini-2.5-pro", Temperature: temp, MaxTokens: maxTokens, TopP: topP, TopK: topK}
	}
	return map[string]RoleConfig{
		RoleFrontDesk: {
			Name: "Aria", DisplayName: "Front Desk Aria", Emoji: "👋", Enabled: true,
			Model:              model(0.7, 1024, 0.8, 30),
			CommunicationStyle: CommunicationStyle{Tone: "friendly", Formality: "professional", Creativity: "medium"},
		},
		RoleStoryArchitect: {
			Name: "Blake", DisplayName: "Story Architect Blake", Emoji: "🏗️", Enabled: true,
			Model:              model(0.6, 2048, 0.8, 30),
			CommunicationStyle: CommunicationStyle{Tone: "analytical", Formality: "professional", Creativity: "medium"},
		},
		RoleCharacterDesigner: {
			Name: "Charlie", DisplayName: "Character Designer Charlie", Emoji: "🎨", Enabled: true,
			Model:              model(0.7, 2048, 0.85, 35),
			CommunicationStyle: CommunicationStyle{Tone: "creative", Formality: "casual", Creativity: "high"},
		},
		RoleCreativeEditor: {
			Name: "Elena", DisplayName: "Creative Editor Elena", Emoji: "🔍", Enabled: true,
			Model:              model(0.5, 2048, 0.8, 30),
			CommunicationStyle: CommunicationStyle{Tone: "critical", Formality: "professional", Creativity: "medium"},
		},
		RoleCreativeDirector: {
			Name: "Kairos", DisplayName: "Creative Director Kairos", Emoji: "👔", Enabled: true,
			Model:              model(0.8, 2048, 0.9, 40),
			CommunicationStyle: CommunicationStyle{Tone: "decisive", Formality: "professional", Creativity: "high"},
		},
	}
}

func defaultGenres() map[string]GenreConfig {
	return map[string]GenreConfig{
		"sci-fi": {
			Description: "Science fiction exploring technology and the future of people",
			Keywords:    []string{"technology", "future", "space", "robot", "time travel", "alien", "AI"},
			Tone:        ToneAdjustments{Creativity: 0.8, Logic: 0.9, Emotion: 0.6},
			PromptModifiers: map[string]string{
				RoleCreativeDirector:  "Favour technological invention and bold visions of the future.",
				RoleStoryArchitect:    "Keep the plot consistent with its scientific premises.",
				RoleCharacterDesigner: "Design characters shaped by the technology around them.",
			},
		},
		"fantasy": {
			Description: "Fantasy full of magic and invented worlds",
			Keywords:    []string{"magic", "dragon", "elf", "wizard", "quest", "another world"},
			Tone:        ToneAdjustments{Creativity: 0.9, Logic: 0.7, Emotion: 0.8},
			PromptModifiers: map[string]string{
				RoleCreativeDirector:  "Build an imaginative world with its own wonder.",
				RoleStoryArchitect:    "Define the rules of the world and respect them.",
				RoleCharacterDesigner: "Give characters traits rooted in the fantasy setting.",
			},
		},
		"romance": {
			Description: "Love stories about the beauty and complexity of relationships",
			Keywords:    []string{"love", "relationship", "romance", "date", "heartbeat"},
			Tone:        ToneAdjustments{Creativity: 0.7, Logic: 0.5, Emotion: 0.9},
			PromptModifiers: map[string]string{
				RoleCreativeDirector:  "Aim for romance that feels real.",
				RoleStoryArchitect:    "Let the relationship develop at a natural pace.",
				RoleCharacterDesigner: "Create attractive characters with emotional depth.",
			},
		},
		"mystery": {
			Description: "Mysteries built on puzzles, clues and deduction",
			Keywords:    []string{"mystery", "detective", "clue", "truth", "crime"},
			Tone:        ToneAdjustments{Creativity: 0.7, Logic: 0.9, Emotion: 0.7},
			PromptModifiers: map[string]string{
				RoleCreativeDirector:  "Design a clever puzzle with fair clues.",
				RoleStoryArchitect:    "Keep the chain of deduction airtight.",
				RoleCharacterDesigner: "Give every suspect more than one face.",
			},
		},
		"general": {
			Description: "General fiction suitable for any theme",
			Keywords:    []string{"story", "life", "growth", "everyday"},
			Tone:        ToneAdjustments{Creativity: 0.7, Logic: 0.7, Emotion: 0.7},
			PromptModifiers: map[string]string{
				RoleCreativeDirector:  "Adapt flexibly to what the client asked for.",
				RoleStoryArchitect:    "Keep the structure balanced.",
				RoleCharacterDesigner: "Create believable characters.",
			},
		},
	}
}

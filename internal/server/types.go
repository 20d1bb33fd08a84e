// Package server exposes the story pipeline over HTTP: JSON endpoints for
// sessions, messages, retries and studio settings, plus a server-sent
// event stream per session.
package server

import (
	"github.com/zhs007/genstory/internal/agent"
	"github.com/zhs007/genstory/internal/config"
)

// CreateSessionRequest is the body of POST /api/session.
type CreateSessionRequest struct {
	UserID string `json:"userId"`
}

// CreateSessionResponse answers POST /api/session.
type CreateSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
}

// GenerateRequest is the body of POST /api/generate/{id}.
type GenerateRequest struct {
	Message string `json:"message"`
}

// GenerateResponse answers POST /api/generate/{id}.
type GenerateResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	FrontDeskResponse string `json:"frontDeskResponse"`
}

// InterruptRequest is the body of POST /api/interrupt/{id}.
type InterruptRequest struct {
	Suggestion string `json:"suggestion"`
}

// MessageResponse is the reply for endpoints that only acknowledge.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SessionView is the public view of a session.
type SessionView struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	Genre             string         `json:"genre"`
	CurrentPhase      string         `json:"currentPhase"`
	CurrentStage      string         `json:"currentStage,omitempty"`
	ConversationCount int            `json:"conversationCount"`
	InterruptionCount int            `json:"interruptionCount"`
	AnsweredQuestions int            `json:"answeredQuestions"`
	TotalQuestions    int            `json:"totalQuestions"`
	CanRetry          bool           `json:"canRetry"`
	LastError         *agent.Failure `json:"lastError,omitempty"`
	Proposals         string         `json:"proposals,omitempty"`
	Running           bool           `json:"running"`
}

// SessionResponse answers GET /api/session/{id}.
type SessionResponse struct {
	Success bool        `json:"success"`
	Session SessionView `json:"session"`
}

// SystemInfo is the server part of GET /api/config.
type SystemInfo struct {
	Host             string   `json:"host"`
	Port             int      `json:"port"`
	HeartbeatSeconds int      `json:"heartbeatSeconds"`
	Store            string   `json:"store"`
	FinalPhase       string   `json:"finalPhase"`
	Stages           []string `json:"stages"`
}

// ConfigData is the payload of GET /api/config.
type ConfigData struct {
	System          SystemInfo               `json:"system"`
	Agents          map[string]agent.Profile `json:"agents"`
	SupportedGenres []string                 `json:"supportedGenres"`
	CurrentGenre    string                   `json:"currentGenre"`
}

// RolesData is the payload of GET /api/roles.
type RolesData struct {
	Roles   map[string]config.RoleConfig `json:"roles"`
	Enabled []string                     `json:"enabled"`
}

// GenresData is the payload of GET /api/genres.
type GenresData struct {
	Supported      []string                      `json:"supported"`
	Configurations map[string]config.GenreConfig `json:"configurations"`
	Current        string                        `json:"current"`
}

// DataResponse wraps a payload.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// GenreRequest is the body of POST /api/genre.
type GenreRequest struct {
	Genre string `json:"genre"`
}

// ValidateResponse answers GET /api/config/validate.
type ValidateResponse struct {
	Success    bool                    `json:"success"`
	Validation config.ValidationResult `json:"validation"`
}

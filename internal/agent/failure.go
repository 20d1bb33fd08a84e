// Package agent implements the per-role facades the pipeline invokes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/zhs007/genstory/internal/llm"
)

// FailureKind classifies a terminal agent failure.
type FailureKind string

const (
	KindNetwork FailureKind = "network" // transient, worth retrying
	KindAPIKey  FailureKind = "api_key" // needs operator action
	KindGeneral FailureKind = "general"
)

// Failure is the error returned by Agent.Invoke.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// AsFailure converts any error into a *Failure, classifying it when needed.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: Classify(err), Message: err.Error()}
}

// Classify maps an LLM client error onto a FailureKind.
func Classify(err error) FailureKind {
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return KindAPIKey
	}

	var se *llm.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return KindAPIKey
		case se.StatusCode == 400 && strings.Contains(strings.ToLower(se.Body), "api key"):
			return KindAPIKey
		case se.StatusCode == 408 || se.StatusCode == 429 || se.StatusCode >= 500:
			return KindNetwork
		}
		return KindGeneral
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}
	return KindGeneral
}

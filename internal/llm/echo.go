package llm

import (
	"context"
	"fmt"
	"strings"
)

// EchoClient answers without any network access. It is used for offline
// runs and demos: the reply names the system prompt's first line and quotes
// the start of the prompt.
type EchoClient struct{}

func (EchoClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return ChatResponse{}, err
	}
	if len(req.Messages) == 0 {
		return ChatResponse{}, fmt.Errorf("llm chat requires at least one message")
	}

	who := firstLine(req.System)
	if who == "" {
		who = "assistant"
	}
	prompt := firstLine(req.Messages[len(req.Messages)-1].Content)
	return ChatResponse{
		Content:      fmt.Sprintf("[%s] %s", truncate(who, 60), truncate(prompt, 200)),
		FinishReason: "STOP",
	}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

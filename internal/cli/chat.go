// chat.go implements "genstory chat", an in-process session.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhs007/genstory/internal/config"
	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/log"
	"github.com/zhs007/genstory/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the story studio in the terminal",
	Long: `Open a session and chat with the front desk. Outside a terminal every
input line is one message and replies are printed as plain text.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	interactive := tui.IsTTY()
	logger := newLogger(cfg)
	if interactive {
		// Log lines would tear the alternate screen.
		logger = log.Discard()
	}

	broker := event.NewBroker(0)
	p, err := newPipeline(cfg, logger, broker, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := cmd.Context()
	id, err := p.CreateSession(ctx, "")
	if err != nil {
		return err
	}
	events, cancel := broker.Subscribe(id)
	defer cancel()

	desk, _ := cfg.Role(config.RoleFrontDesk)
	opts := tui.ChatOptions{
		Context:   ctx,
		Pipeline:  p.Orchestrator,
		SessionID: id,
		Events:    events,
		FrontDesk: desk.Name,
		Greeting:  fmt.Sprintf("Hi, I'm %s. Tell me about the story you would like to create.", desk.Name),
	}

	if interactive {
		err = tui.Run(tui.NewChatModel(opts))
	} else {
		err = tui.RunLines(opts, os.Stdin, cmd.OutOrStdout())
	}
	return joinShutdown(err, p)
}

// joinShutdown waits briefly for running stages so their results land in
// the store before it is closed.
func joinShutdown(err error, p *pipeline) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := p.Shutdown(ctx); err == nil {
		err = serr
	}
	return err
}

package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/zhs007/genstory/internal/event"
)

// RunLines runs a chat without a terminal: each line of in is one command
// and replies and events are written to out as plain text. At end of input
// it waits for an in-flight run so its events are not lost.
func RunLines(opts ChatOptions, in io.Reader, out io.Writer) error {
	if opts.FrontDesk == "" {
		opts.FrontDesk = "Studio"
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var mu sync.Mutex
	say := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format+"\n", args...)
	}
	show := func(ev event.Event) {
		if !echoed(ev) {
			say("%s", eventLine(ev))
		}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-opts.Events:
				if !ok {
					return
				}
				show(ev)
			case <-done:
				// Drain what is already buffered.
				for {
					select {
					case ev, ok := <-opts.Events:
						if !ok {
							return
						}
						show(ev)
					default:
						return
					}
				}
			}
		}
	}()
	stop := func() {
		close(done)
		wg.Wait()
	}

	if opts.Greeting != "" {
		say("%s: %s", opts.FrontDesk, opts.Greeting)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		c := ParseCommand(sc.Text())
		if c.Kind == CmdMessage && c.Arg == "" {
			continue
		}
		if c.Kind == CmdQuit {
			stop()
			return nil
		}
		reply, err := execute(ctx, opts.Pipeline, opts.SessionID, c)
		switch {
		case errors.Is(err, ErrUsage):
			say("usage: %v", err)
		case err != nil:
			say("error: %v", err)
		case c.Kind == CmdMessage || c.Kind == CmdSuggest:
			say("%s: %s", opts.FrontDesk, reply)
		default:
			say("%s", reply)
		}
	}
	if err := sc.Err(); err != nil {
		stop()
		return fmt.Errorf("reading input: %w", err)
	}

	err := opts.Pipeline.Wait(ctx, opts.SessionID)
	stop()
	return err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonworks/tempo/internal/version"
	"github.com/halcyonworks/tempo/kernel/assistant"
)

type consoleConfig struct {
	Manager     *assistant.Manager
	HistoryFile string
	Stream      bool
	Logger      *zap.Logger
}

type console struct {
	mgr    *assistant.Manager
	editor lineEditor
	out    io.Writer
	stream bool
	logger *zap.Logger
}

func newConsole(cfg consoleConfig) (*console, error) {
	editor, err := newLineEditor(lineEditorConfig{
		HistoryFile: cfg.HistoryFile,
		Commands:    []string{"help", "new", "mode", "version", "exit"},
	})
	if err != nil {
		return nil, err
	}
	return &console{
		mgr:    cfg.Manager,
		editor: editor,
		out:    editor.Output(),
		stream: cfg.Stream,
		logger: cfg.Logger,
	}, nil
}

func (c *console) Close() {
	_ = c.editor.Close()
}

func (c *console) Run() error {
	mode := c.mgr.StartSession(sessionContext(time.Now(), time.Now()))
	fmt.Fprintf(c.out, "tempo %s (%s mode). /help for commands.\n", version.String(), mode)

	for {
		line, err := c.editor.ReadLine("> ")
		if err != nil {
			if errors.Is(err, errInputInterrupt) {
				continue
			}
			if errors.Is(err, errInputEOF) {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := c.handleCommand(line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}
		c.sendTurn(line)
	}
}

func (c *console) handleCommand(line string) (exit bool, err error) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "help":
		fmt.Fprintln(c.out, "/new [YYYY-MM-DD]  start a fresh session, optionally for a target date")
		fmt.Fprintln(c.out, "/mode              show the session's temporal mode")
		fmt.Fprintln(c.out, "/version           print version")
		fmt.Fprintln(c.out, "/exit              quit")
		return false, nil
	case "new":
		now := time.Now()
		target := now
		if len(fields) > 1 {
			parsed, parseErr := time.ParseInLocation("2006-01-02", fields[1], time.Local)
			if parseErr != nil {
				return false, fmt.Errorf("bad date %q, want YYYY-MM-DD", fields[1])
			}
			target = parsed
		}
		mode := c.mgr.StartSession(sessionContext(target, now))
		fmt.Fprintf(c.out, "new session: %s mode, %s\n", mode, target.Format("Monday, January 2, 2006"))
		return false, nil
	case "mode":
		if mode, ok := c.mgr.Mode(); ok {
			fmt.Fprintln(c.out, mode)
		} else {
			fmt.Fprintln(c.out, "no active session")
		}
		return false, nil
	case "version":
		fmt.Fprintln(c.out, "tempo", version.String())
		return false, nil
	case "exit", "quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

// sendTurn runs one turn; Ctrl-C aborts the in-flight request only.
func (c *console) sendTurn(text string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	req := assistant.SendRequest{Text: text}
	var reply *assistant.Reply
	var err error
	if c.stream {
		printed := 0
		reply, err = c.mgr.SendStream(ctx, req, func(text, _ string) {
			if len(text) > printed {
				fmt.Fprint(c.out, text[printed:])
				printed = len(text)
			}
		})
		fmt.Fprintln(c.out)
	} else {
		reply, err = c.mgr.Send(ctx, req)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(c.out, "(interrupted)")
			return
		}
		c.logger.Error("turn failed", zap.Error(err))
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if !c.stream && reply != nil {
		fmt.Fprintln(c.out, reply.Text)
	}
}

// sessionContext composes the session context text the classifier and the
// system instruction consume.
func sessionContext(target, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Date: %s\n", now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&b, "Current Time: %s\n", now.Format("3:04 PM"))
	fmt.Fprintf(&b, "Target Date: %s\n", target.Format("2006-01-02"))
	if target.Format("2006-01-02") > now.Format("2006-01-02") {
		b.WriteString("Is Future Date: true\n")
	}
	return b.String()
}

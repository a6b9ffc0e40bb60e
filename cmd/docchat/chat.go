package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/session"
)

func newChatCmd() *cobra.Command {
	var (
		configPath string
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Starts an interactive session. Plain lines are sent as questions; lines
starting with / are commands (type /help). Ctrl-C cancels the request in
flight, or exits when nothing is in flight.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, noColor)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to docchat config file")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func runChat(cmd *cobra.Command, configPath string, noColor bool) error {
	rt, err := newRuntime(configPath, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctrl, err := rt.newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if ctrl.CancelTurn() || ctrl.CancelUpload() {
				continue
			}
			cancel()
			return
		}
	}()

	r := newRenderer(cmd.OutOrStdout(), noColor)
	fmt.Fprintf(cmd.OutOrStdout(), "docchat session %s (backend %s)\n", ctrl.ID(), rt.client.BaseURL())
	return runREPL(ctx, cmd.InOrStdin(), ctrl, r)
}

const replHelp = `Commands:
  /upload <path>  upload a PDF document
  /reset          clear the conversation (asks for confirmation)
  /yes, /no       confirm or cancel a pending reset
  /dismiss        hide the current error
  /history        reprint the whole conversation
  /help           show this help
  /quit           leave the session
Anything else is sent as a question.`

// repl drives a controller from line-oriented input.
type repl struct {
	ctrl    *session.Controller
	r       *renderer
	lastSeq int
	shown   *session.Error
}

// runREPL reads lines from in until EOF, /quit or ctx cancellation.
func runREPL(ctx context.Context, in io.Reader, ctrl *session.Controller, r *renderer) error {
	p := &repl{ctrl: ctrl, r: r}
	p.refresh()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if quit := p.handle(ctx, line); quit {
				return nil
			}
			p.refresh()
		}
	}
}

// handle executes one input line and reports whether the session should end.
func (p *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		p.shown = nil
		if !p.ctrl.Send(ctx, line) {
			p.r.noticef("still waiting for the previous answer")
		}
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(p.r.out, replHelp)
	case "/upload":
		p.upload(ctx, arg)
	case "/reset":
		if p.ctrl.RequestReset() {
			p.r.noticef("Clear the whole conversation? Type /yes to confirm or /no to keep it.")
		}
	case "/yes":
		if !p.ctrl.ConfirmReset() {
			p.r.noticef("no reset pending; type /reset first")
		}
	case "/no":
		if p.ctrl.CancelReset() {
			p.r.noticef("reset canceled")
		}
	case "/dismiss":
		p.ctrl.DismissError()
		p.shown = nil
	case "/history":
		p.r.transcript(p.ctrl.State().Turns)
	default:
		p.r.noticef("unknown command %s (type /help)", name)
	}
	return false
}

func (p *repl) upload(ctx context.Context, path string) {
	if path == "" {
		p.r.noticef("usage: /upload <path>")
		return
	}
	doc, err := session.OpenDocument(path)
	if err != nil {
		p.r.noticef("%v", err)
		return
	}
	p.r.noticef("uploading %s ...", doc.Name)
	p.shown = nil
	if !p.ctrl.Submit(ctx, doc) {
		p.r.noticef("an upload is already in progress")
	}
}

// refresh prints turns appended since the last refresh and any new error.
func (p *repl) refresh() {
	st := p.ctrl.State()
	for _, t := range st.Turns {
		if t.Sequence > p.lastSeq {
			p.r.turn(t)
			p.lastSeq = t.Sequence
		}
	}
	if st.Error != nil && (p.shown == nil || *p.shown != *st.Error) {
		p.r.showError(st.Error)
	}
	p.shown = st.Error
}

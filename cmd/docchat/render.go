package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/zulandar/docchat/internal/conversation"
	"github.com/zulandar/docchat/internal/session"
	"golang.org/x/term"
)

// renderer prints conversation turns and notices, colored when writing to a
// terminal.
type renderer struct {
	out       io.Writer
	user      *color.Color
	assistant *color.Color
	failure   *color.Color
	notice    *color.Color
}

func newRenderer(out io.Writer, noColor bool) *renderer {
	r := &renderer{
		out:       out,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen),
		failure:   color.New(color.FgRed),
		notice:    color.New(color.FgYellow),
	}
	if noColor || !isTerminal(out) {
		for _, c := range []*color.Color{r.user, r.assistant, r.failure, r.notice} {
			c.DisableColor()
		}
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (r *renderer) turn(t conversation.Turn) {
	switch t.Role {
	case conversation.RoleUser:
		r.user.Fprint(r.out, "you> ")
		fmt.Fprintln(r.out, t.Content)
	default:
		r.assistant.Fprint(r.out, "assistant> ")
		fmt.Fprintln(r.out, t.Content)
	}
}

func (r *renderer) showError(e *session.Error) {
	r.failure.Fprintf(r.out, "error (%s, %s): %s\n", e.Op, e.Kind, e.Message)
	if e.Detail != "" && e.Detail != e.Message {
		r.failure.Fprintf(r.out, "  %s\n", e.Detail)
	}
}

func (r *renderer) noticef(format string, args ...any) {
	r.notice.Fprintf(r.out, format+"\n", args...)
}

// transcript prints every turn of the current conversation.
func (r *renderer) transcript(turns []conversation.Turn) {
	fmt.Fprintln(r.out, strings.Repeat("-", 40))
	for _, t := range turns {
		r.turn(t)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 40))
}

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/session"
)

func newREPLController(t *testing.T, url string) *session.Controller {
	t.Helper()
	client, err := backend.NewClient(backend.ClientOpts{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	ctrl, err := session.New(session.Opts{
		Backend:      client,
		Greeting:     "hi there",
		ResetMessage: "all clear",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctrl.Close)
	return ctrl
}

func replOutput(t *testing.T, ctrl *session.Controller, input string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := runREPL(context.Background(), strings.NewReader(input), ctrl, newRenderer(&buf, true)); err != nil {
		t.Fatalf("runREPL: %v", err)
	}
	return buf.String()
}

func TestREPL_Conversation(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)

	out := replOutput(t, ctrl, "first question\n\nsecond question\n/quit\nnever sent\n")

	for _, want := range []string{
		"assistant> hi there",
		"you> first question",
		"assistant> answer 1: first question",
		"you> second question",
		"assistant> answer 3: second question",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "never sent") {
		t.Error("input after /quit was processed")
	}
	if n := len(ctrl.State().Turns); n != 5 {
		t.Errorf("turns = %d, want 5", n)
	}
}

func TestREPL_EOFEndsSession(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)

	out := replOutput(t, ctrl, "only question")
	if !strings.Contains(out, "answer 1: only question") {
		t.Errorf("output = %s", out)
	}
}

func TestREPL_ResetFlow(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)

	out := replOutput(t, ctrl, "q\n/yes\n/reset\n/no\n/reset\n/yes\n")

	if !strings.Contains(out, "no reset pending") {
		t.Errorf("expected notice for /yes without /reset:\n%s", out)
	}
	if !strings.Contains(out, "reset canceled") {
		t.Errorf("expected notice for /no:\n%s", out)
	}
	if !strings.Contains(out, "assistant> all clear") {
		t.Errorf("reset message not printed:\n%s", out)
	}
	st := ctrl.State()
	if len(st.Turns) != 1 || st.Turns[0].Content != "all clear" {
		t.Errorf("Turns = %+v, want reset message only", st.Turns)
	}
}

func TestREPL_Upload(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)
	pdf := writePDF(t, "report.pdf")

	out := replOutput(t, ctrl, "/upload "+pdf+"\nsummary?\n")

	if !strings.Contains(out, `File "report.pdf" was processed successfully`) {
		t.Errorf("acknowledgement missing:\n%s", out)
	}
	if !strings.Contains(out, "answer 2: summary?") {
		t.Errorf("answer should replay greeting and acknowledgement:\n%s", out)
	}
	if ctrl.State().Document != "report.pdf" {
		t.Errorf("Document = %q", ctrl.State().Document)
	}
}

func TestREPL_UploadRejectsNonPDF(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)
	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("plain notes"), 0644)

	out := replOutput(t, ctrl, "/upload "+path+"\n/dismiss\n")

	if !strings.Contains(out, "error (upload, validation)") {
		t.Errorf("validation error not shown:\n%s", out)
	}
	if ctrl.State().Error != nil {
		t.Error("/dismiss did not clear the error")
	}
}

func TestREPL_UploadUsageAndMissingFile(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)

	out := replOutput(t, ctrl, "/upload\n/upload /nonexistent/x.pdf\n")
	if !strings.Contains(out, "usage: /upload <path>") {
		t.Errorf("usage notice missing:\n%s", out)
	}
	if !strings.Contains(out, "open document") {
		t.Errorf("open error missing:\n%s", out)
	}
}

func TestREPL_ChatFailureShown(t *testing.T) {
	srv := newFakeBackend(t)
	srv.Close()
	ctrl := newREPLController(t, srv.URL)

	out := replOutput(t, ctrl, "anyone there?\n")
	if !strings.Contains(out, "error (chat, transport)") {
		t.Errorf("transport error not shown:\n%s", out)
	}
	if !strings.Contains(out, "you> anyone there?") {
		t.Errorf("user turn should stay visible:\n%s", out)
	}
}

func TestREPL_HelpHistoryUnknown(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)

	out := replOutput(t, ctrl, "/help\n/history\n/bogus\n")
	if !strings.Contains(out, "/upload <path>") {
		t.Errorf("help missing:\n%s", out)
	}
	if strings.Count(out, "assistant> hi there") != 2 {
		t.Errorf("/history should reprint the greeting:\n%s", out)
	}
	if !strings.Contains(out, "unknown command /bogus") {
		t.Errorf("unknown command notice missing:\n%s", out)
	}
}

func TestREPL_ContextCancelEnds(t *testing.T) {
	srv := newFakeBackend(t)
	ctrl := newREPLController(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A reader that never returns would block forever without ctx.
	pr, pw := io.Pipe()
	defer pw.Close()
	if err := runREPL(ctx, pr, ctrl, newRenderer(&bytes.Buffer{}, true)); err != nil {
		t.Fatalf("runREPL: %v", err)
	}
}

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zulandar/docchat/internal/conversation"
	"github.com/zulandar/docchat/internal/session"
)

func TestRenderer_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false)

	r.turn(conversation.Turn{Role: conversation.RoleUser, Content: "hi"})
	r.turn(conversation.Turn{Role: conversation.RoleAssistant, Content: "hello"})

	want := "you> hi\nassistant> hello\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Error("escape codes written to a non-terminal")
	}
}

func TestRenderer_Error(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true)

	r.showError(&session.Error{Op: session.OpUpload, Kind: session.KindServer, Message: "Failed to upload", Detail: "backend: upload: 500"})
	out := buf.String()
	if !strings.Contains(out, "error (upload, server): Failed to upload") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "  backend: upload: 500") {
		t.Errorf("detail missing: %q", out)
	}
}

func TestIsTerminal_Buffer(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("bytes.Buffer reported as terminal")
	}
}

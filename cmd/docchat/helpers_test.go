package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/config"
)

// newFakeBackend serves /, /chat and /upload. Chat answers echo the query
// and the length of the replayed history.
func newFakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(backend.ChatResponse{
			Answer: fmt.Sprintf("answer %d: %s", len(req.History), req.Query),
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		_, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(backend.UploadResponse{Status: "success", Filename: fh.Filename})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config pointing at backendURL with a sqlite
// transcript and log file inside a temp dir.
func writeConfig(t *testing.T, backendURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "docchat.yaml")
	content := fmt.Sprintf(`backend:
  url: %s
transcript:
  driver: sqlite
  path: %s
log:
  file: %s
`, backendURL, filepath.Join(dir, "transcript.db"), filepath.Join(dir, "docchat.log"))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writePDF(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func configTranscriptNone() config.TranscriptConfig {
	return config.TranscriptConfig{Driver: "none"}
}

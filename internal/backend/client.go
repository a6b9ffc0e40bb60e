// Package backend is the HTTP client for the document question-answering
// service. It speaks two operations, POST /upload and POST /chat, plus a
// root GET used for reachability checks.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// HistoryEntry is one prior turn replayed to the backend as context.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the JSON body of POST /chat.
type ChatRequest struct {
	Query   string         `json:"query"`
	History []HistoryEntry `json:"history"`
	UserID  string         `json:"user_id,omitempty"`
}

// ChatResponse is the JSON body returned by POST /chat.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// UploadResponse is the JSON body returned by POST /upload. Only Status is
// interpreted; the rest is informational.
type UploadResponse struct {
	Status         string `json:"status"`
	Filename       string `json:"filename,omitempty"`
	Message        string `json:"message,omitempty"`
	CharsExtracted int    `json:"chars_extracted,omitempty"`
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL    string
	HTTPClient *http.Client // defaults to a client with no timeout
	UserID     string       // optional correlation id sent with chat requests
	Logger     *zap.Logger
}

// Client talks to the question-answering backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	userID  string
	logger  *zap.Logger
}

// NewClient creates a Client for the backend at opts.BaseURL.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend: base url is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: base url %q must be http or https", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: u,
		http:    hc,
		userID:  opts.UserID,
		logger:  logger.Named("backend"),
	}, nil
}

// BaseURL returns the backend root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.JoinPath(path).String()
}

// Chat sends query with the replayed history and returns the backend answer.
func (c *Client) Chat(ctx context.Context, query string, history []HistoryEntry) (*ChatResponse, error) {
	if history == nil {
		history = []HistoryEntry{}
	}
	body, err := json.Marshal(ChatRequest{Query: query, History: history, UserID: c.userID})
	if err != nil {
		return nil, fmt.Errorf("backend: chat: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("chat"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: chat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out ChatResponse
	if err := c.do(req, "chat", &out); err != nil {
		return nil, err
	}
	c.logger.Debug("chat answered",
		zap.Int("history", len(history)),
		zap.Int("answer_length", len(out.Answer)))
	return &out, nil
}

// Upload sends one document as the multipart field "file" with the declared
// media type. A 2xx body whose status is "error" is reported as a ServerError.
func (c *Client) Upload(ctx context.Context, name, mediaType string, data []byte) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": name,
	}))
	header.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("backend: upload: create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("backend: upload: write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("backend: upload: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload"), &buf)
	if err != nil {
		return nil, fmt.Errorf("backend: upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out UploadResponse
	if err := c.do(req, "upload", &out); err != nil {
		return nil, err
	}
	if strings.EqualFold(out.Status, "error") {
		return nil, &ServerError{Op: "upload", StatusCode: http.StatusOK, Message: out.Message}
	}
	c.logger.Debug("document uploaded",
		zap.String("document", name),
		zap.Int("bytes", len(data)),
		zap.Int("chars_extracted", out.CharsExtracted))
	return &out, nil
}

// Ping checks that the backend root answers with a 2xx status.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String(), nil)
	if err != nil {
		return fmt.Errorf("backend: ping: build request: %w", err)
	}
	return c.do(req, "ping", nil)
}

// do executes req and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("backend returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return &TransportError{Op: op, Err: ctxErr}
		}
		return &ServerError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decode response: %v", err),
		}
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body. It
// understands {"detail": ...} and {"message": ...} and falls back to the
// trimmed raw text.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(r)
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

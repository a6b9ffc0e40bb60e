package session

import "github.com/zulandar/docchat/internal/conversation"

// UploadPhase is the lifecycle position of the document upload handshake.
type UploadPhase string

const (
	UploadIdle       UploadPhase = "idle"
	UploadValidating UploadPhase = "validating"
	UploadInFlight   UploadPhase = "in_flight"
	UploadSucceeded  UploadPhase = "succeeded"
	UploadFailed     UploadPhase = "failed"
)

// UploadState is the active upload state. Document is set for InFlight and
// Succeeded; Reason is set for Failed.
type UploadState struct {
	Phase    UploadPhase `json:"phase"`
	Document string      `json:"document,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// TurnPhase is the lifecycle position of the chat request/response cycle.
type TurnPhase string

const (
	TurnIdle             TurnPhase = "idle"
	TurnAwaitingResponse TurnPhase = "awaiting_response"
	TurnFailed           TurnPhase = "failed"
)

// TurnState is the active turn execution state.
type TurnState struct {
	Phase  TurnPhase `json:"phase"`
	Reason string    `json:"reason,omitempty"`
}

// Operation names the intent an Error belongs to.
type Operation string

const (
	OpUpload Operation = "upload"
	OpChat   Operation = "chat"
)

// ErrorKind classifies why an operation failed.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindTransport  ErrorKind = "transport"
	KindServer     ErrorKind = "server"
	KindCanceled   ErrorKind = "canceled"
)

// Error is the transient, user-visible failure shown next to the
// conversation. Message is meant for display; Detail carries the cause.
type Error struct {
	Op      Operation `json:"op"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// State is the read-only projection of a Controller. Every field is a copy.
type State struct {
	SessionID       string              `json:"session_id"`
	Turns           []conversation.Turn `json:"turns"`
	Upload          UploadState         `json:"upload"`
	Turn            TurnState           `json:"turn"`
	Error           *Error              `json:"error,omitempty"`
	ConfirmingReset bool                `json:"confirming_reset"`
	Document        string              `json:"document,omitempty"`
}

// Loading reports whether a chat turn is awaiting its response.
func (s State) Loading() bool {
	return s.Turn.Phase == TurnAwaitingResponse
}

// Uploading reports whether a document upload is in flight.
func (s State) Uploading() bool {
	return s.Upload.Phase == UploadInFlight
}

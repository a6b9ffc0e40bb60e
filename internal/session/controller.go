// Package session implements the conversational session controller: it owns
// the conversation, coordinates document uploads, executes chat turns against
// the backend and exposes the derived UI state as a read-only projection.
//
// All state transitions happen under one mutex, which plays the role of the
// single logical UI thread. Network calls are made with the mutex released.
// Uploads and chat turns are each single-flight but independent of each other.
//
//	ctrl, err := session.New(session.Opts{Backend: client})
//	ctrl.Send(ctx, "What is the main finding?")
//	st := ctrl.State()
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/conversation"
	"go.uber.org/zap"
)

// Default display strings.
const (
	DefaultGreeting        = "Hello! I'm your document assistant. Upload a PDF and I'll answer questions about it."
	DefaultResetMessage    = "The conversation has been cleared. Upload a PDF or ask a new question to start again."
	DefaultNoAnswerMessage = "Sorry, no answer was found."
	DefaultAcknowledgement = "File %q was processed successfully. You can ask questions about it now!"
)

// User-facing error messages.
const (
	msgUnsupportedType = "Please choose a PDF file."
	msgTooLarge        = "The file is too large to upload."
	msgUploadFailed    = "Failed to upload the file. Make sure the backend is running."
	msgChatFailed      = "Failed to reach the server."
	msgCanceled        = "The request was canceled."
)

// Reasons recorded in UploadState/TurnState when an operation fails.
const (
	ReasonUnsupportedType = "unsupported type"
	ReasonTooLarge        = "document too large"
	ReasonCanceled        = "canceled"
	ReasonTimedOut        = "timed out"
)

// Backend is the remote question-answering service.
type Backend interface {
	Upload(ctx context.Context, name, mediaType string, data []byte) (*backend.UploadResponse, error)
	Chat(ctx context.Context, query string, history []backend.HistoryEntry) (*backend.ChatResponse, error)
}

// Opts holds parameters for creating a Controller. Only Backend is required.
type Opts struct {
	Backend  Backend
	Logger   *zap.Logger
	Recorder Recorder // optional durable transcript

	SessionID       string // defaults to a fresh UUIDv7
	Greeting        string
	ResetMessage    string
	NoAnswerMessage string
	Acknowledgement string // format string taking the document name

	// RequestTimeout bounds each upload and chat request. Zero means the
	// request may wait indefinitely.
	RequestTimeout time.Duration
	// RollbackOnFailure removes the optimistic user turn when its chat
	// request fails. By default the turn stays visible.
	RollbackOnFailure bool
	// MaxDocumentBytes rejects larger documents locally. Zero disables it.
	MaxDocumentBytes int64
	// RecordTimeout bounds each Recorder call. Zero means
	// DefaultRecordTimeout.
	RecordTimeout time.Duration
}

// Controller is the session controller. It is safe for concurrent use.
type Controller struct {
	backend  Backend
	logger   *zap.Logger
	recorder Recorder

	greeting        string
	resetMessage    string
	noAnswerMessage string
	acknowledgement string
	timeout         time.Duration
	rollback        bool
	maxBytes        int64
	recordTimeout   time.Duration

	mu           sync.Mutex
	id           string
	store        *conversation.Store
	upload       UploadState
	turn         TurnState
	err          *Error
	confirming   bool
	document     string
	epoch        uint64 // bumped by reset; late results from older epochs are dropped
	cancelTurn   context.CancelFunc
	cancelUpload context.CancelFunc
	subs         map[int]chan State
	nextSub      int
	closed       bool // intents rejected
	stopped      bool // recorder queue closed

	inflight   conc.WaitGroup
	records    chan record
	recordDone chan struct{}
}

// New creates a Controller whose conversation is seeded with the greeting.
func New(opts Opts) (*Controller, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("session: backend is required")
	}
	if opts.RequestTimeout < 0 {
		return nil, fmt.Errorf("session: request timeout must not be negative")
	}
	if opts.RecordTimeout < 0 {
		return nil, fmt.Errorf("session: record timeout must not be negative")
	}
	recordTimeout := opts.RecordTimeout
	if recordTimeout == 0 {
		recordTimeout = DefaultRecordTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	c := &Controller{
		backend:         opts.Backend,
		logger:          logger.Named("session").With(zap.String("session_id", id)),
		recorder:        opts.Recorder,
		greeting:        orDefault(opts.Greeting, DefaultGreeting),
		resetMessage:    orDefault(opts.ResetMessage, DefaultResetMessage),
		noAnswerMessage: orDefault(opts.NoAnswerMessage, DefaultNoAnswerMessage),
		acknowledgement: orDefault(opts.Acknowledgement, DefaultAcknowledgement),
		timeout:         opts.RequestTimeout,
		rollback:        opts.RollbackOnFailure,
		maxBytes:        opts.MaxDocumentBytes,
		recordTimeout:   recordTimeout,
		id:              id,
		upload:          UploadState{Phase: UploadIdle},
		turn:            TurnState{Phase: TurnIdle},
		subs:            make(map[int]chan State),
	}
	c.store = conversation.NewStore(c.greeting)

	if c.recorder != nil {
		c.records = make(chan record, recordQueueSize)
		c.recordDone = make(chan struct{})
		go c.drainRecords()
		greeting, _ := c.store.Last()
		c.recordLocked(sessionStarted(id, greeting))
	}

	c.logger.Info("session started")
	return c, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	st := State{
		SessionID:       c.id,
		Turns:           c.store.Snapshot(),
		Upload:          c.upload,
		Turn:            c.turn,
		ConfirmingReset: c.confirming,
		Document:        c.document,
	}
	if c.err != nil {
		e := *c.err
		st.Error = &e
	}
	return st
}

// ---------------------------------------------------------------------------
// Turn executor
// ---------------------------------------------------------------------------

// Send runs one chat turn and returns once it has resolved. It reports false
// without touching the conversation when query is blank or another turn is
// still awaiting its response.
func (c *Controller) Send(ctx context.Context, query string) bool {
	run, ok := c.beginSend(ctx, query)
	if !ok {
		return false
	}
	run()
	return true
}

// SendAsync applies Send's preconditions and optimistic append on the calling
// goroutine and performs the request in the background.
func (c *Controller) SendAsync(ctx context.Context, query string) bool {
	run, ok := c.beginSend(ctx, query)
	if !ok {
		return false
	}
	c.inflight.Go(run)
	return true
}

func (c *Controller) beginSend(ctx context.Context, query string) (func(), bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	if c.turn.Phase == TurnAwaitingResponse {
		c.logger.Debug("send rejected: turn already in flight")
		return nil, false
	}

	history := toHistory(c.store.Snapshot())
	userTurn, err := c.store.Append(conversation.RoleUser, query)
	if err != nil {
		// Unreachable: the role is a constant.
		c.logger.Error("append user turn", zap.Error(err))
		return nil, false
	}
	c.turn = TurnState{Phase: TurnAwaitingResponse}
	c.recordLocked(turnAppended(c.id, userTurn))

	opCtx, cancel := c.operationContext(ctx)
	c.cancelTurn = cancel
	epoch := c.epoch
	c.publishLocked()

	c.logger.Info("chat turn started",
		zap.Int("sequence", userTurn.Sequence),
		zap.Int("history", len(history)))

	return func() {
		defer cancel()
		resp, err := c.backend.Chat(opCtx, query, history)
		c.finishSend(epoch, userTurn, resp, err)
	}, true
}

func (c *Controller) finishSend(epoch uint64, userTurn conversation.Turn, resp *backend.ChatResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		c.logger.Debug("discarding chat result from before reset", zap.Int("sequence", userTurn.Sequence))
		return
	}
	c.cancelTurn = nil

	if err != nil {
		kind, reason := classify(err)
		if c.rollback && c.store.Rollback(userTurn.Sequence) {
			c.recordLocked(turnRolledBack(c.id, userTurn.Sequence))
		}
		c.turn = TurnState{Phase: TurnFailed, Reason: reason}
		c.err = &Error{Op: OpChat, Kind: kind, Message: failureMessage(kind, msgChatFailed), Detail: err.Error()}
		c.logger.Warn("chat turn failed",
			zap.Int("sequence", userTurn.Sequence),
			zap.String("kind", string(kind)),
			zap.Error(err))
		c.publishLocked()
		return
	}

	answer := ""
	if resp != nil {
		answer = resp.Answer
	}
	if strings.TrimSpace(answer) == "" {
		answer = c.noAnswerMessage
	}
	reply, _ := c.store.Append(conversation.RoleAssistant, answer)
	c.turn = TurnState{Phase: TurnIdle}
	c.err = nil
	c.recordLocked(turnAppended(c.id, reply))
	c.logger.Info("chat turn answered",
		zap.Int("sequence", reply.Sequence),
		zap.Int("answer_length", len(answer)))
	c.publishLocked()
}

// toHistory converts turns to the wire form replayed to the backend.
func toHistory(turns []conversation.Turn) []backend.HistoryEntry {
	history := make([]backend.HistoryEntry, len(turns))
	for i, t := range turns {
		history[i] = backend.HistoryEntry{Role: string(t.Role), Content: t.Content}
	}
	return history
}

// ---------------------------------------------------------------------------
// Upload coordinator
// ---------------------------------------------------------------------------

// Submit validates and uploads doc, returning once the upload has resolved.
// It reports false when another upload is still in flight. A document that
// fails local validation is accepted, fails synchronously and never reaches
// the network.
func (c *Controller) Submit(ctx context.Context, doc Document) bool {
	run, ok := c.beginSubmit(ctx, doc)
	if !ok {
		return false
	}
	if run != nil {
		run()
	}
	return true
}

// SubmitAsync validates doc on the calling goroutine and uploads it in the
// background.
func (c *Controller) SubmitAsync(ctx context.Context, doc Document) bool {
	run, ok := c.beginSubmit(ctx, doc)
	if !ok {
		return false
	}
	if run != nil {
		c.inflight.Go(run)
	}
	return true
}

func (c *Controller) beginSubmit(ctx context.Context, doc Document) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	if c.upload.Phase == UploadInFlight {
		c.logger.Debug("submit rejected: upload already in flight")
		return nil, false
	}

	c.upload = UploadState{Phase: UploadValidating, Document: doc.Name}
	if reason, msg := c.validate(doc); reason != "" {
		c.upload = UploadState{Phase: UploadFailed, Reason: reason}
		c.err = &Error{Op: OpUpload, Kind: KindValidation, Message: msg, Detail: reason}
		c.logger.Info("document rejected",
			zap.String("document", doc.Name),
			zap.String("media_type", doc.MediaType),
			zap.String("reason", reason))
		c.publishLocked()
		return nil, true
	}

	c.upload = UploadState{Phase: UploadInFlight, Document: doc.Name}
	opCtx, cancel := c.operationContext(ctx)
	c.cancelUpload = cancel
	epoch := c.epoch
	c.publishLocked()

	c.logger.Info("upload started",
		zap.String("document", doc.Name),
		zap.Int("bytes", len(doc.Data)))

	return func() {
		defer cancel()
		_, err := c.backend.Upload(opCtx, doc.Name, doc.MediaType, doc.Data)
		c.finishSubmit(epoch, doc.Name, err)
	}, true
}

// validate returns a failure reason and display message, or empty strings
// when doc may be uploaded.
func (c *Controller) validate(doc Document) (string, string) {
	if baseMediaType(doc.MediaType) != MediaTypePDF {
		return ReasonUnsupportedType, msgUnsupportedType
	}
	if c.maxBytes > 0 && int64(len(doc.Data)) > c.maxBytes {
		return ReasonTooLarge, msgTooLarge
	}
	return "", ""
}

func (c *Controller) finishSubmit(epoch uint64, name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		c.logger.Debug("discarding upload result from before reset", zap.String("document", name))
		return
	}
	c.cancelUpload = nil

	if err != nil {
		kind, reason := classify(err)
		c.upload = UploadState{Phase: UploadFailed, Reason: reason}
		c.err = &Error{Op: OpUpload, Kind: kind, Message: failureMessage(kind, msgUploadFailed), Detail: err.Error()}
		c.logger.Warn("upload failed",
			zap.String("document", name),
			zap.String("kind", string(kind)),
			zap.Error(err))
		c.publishLocked()
		return
	}

	c.upload = UploadState{Phase: UploadSucceeded, Document: name}
	c.document = name
	c.err = nil
	ack, _ := c.store.Append(conversation.RoleAssistant, fmt.Sprintf(c.acknowledgement, name))
	c.recordLocked(documentAttached(c.id, name))
	c.recordLocked(turnAppended(c.id, ack))
	c.logger.Info("upload succeeded", zap.String("document", name))
	c.publishLocked()
}

// ---------------------------------------------------------------------------
// Reset workflow and other intents
// ---------------------------------------------------------------------------

// RequestReset opens the reset confirmation. Nothing is cleared yet.
func (c *Controller) RequestReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.confirming {
		return false
	}
	c.confirming = true
	c.publishLocked()
	return true
}

// CancelReset closes a pending confirmation without changing anything else.
func (c *Controller) CancelReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.confirming {
		return false
	}
	c.confirming = false
	c.publishLocked()
	return true
}

// ConfirmReset clears the conversation down to the reset message and returns
// every derived state to its initial value. Requests still in flight are
// canceled and their results discarded. It is a no-op unless a reset was
// requested first.
func (c *Controller) ConfirmReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.confirming {
		return false
	}

	c.epoch++
	if c.cancelTurn != nil {
		c.cancelTurn()
		c.cancelTurn = nil
	}
	if c.cancelUpload != nil {
		c.cancelUpload()
		c.cancelUpload = nil
	}

	turn := c.store.Reset(c.resetMessage)
	c.upload = UploadState{Phase: UploadIdle}
	c.turn = TurnState{Phase: TurnIdle}
	c.err = nil
	c.confirming = false
	c.document = ""
	c.recordLocked(sessionReset(c.id, turn))
	c.logger.Info("conversation reset", zap.Int("sequence", turn.Sequence))
	c.publishLocked()
	return true
}

// DismissError clears the visible error, if any.
func (c *Controller) DismissError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return false
	}
	c.err = nil
	c.publishLocked()
	return true
}

// CancelTurn aborts the chat request in flight. The turn then fails with
// kind canceled.
func (c *Controller) CancelTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTurn == nil {
		return false
	}
	c.cancelTurn()
	return true
}

// CancelUpload aborts the upload in flight. The upload then fails with kind
// canceled.
func (c *Controller) CancelUpload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelUpload == nil {
		return false
	}
	c.cancelUpload()
	return true
}

// Wait blocks until every operation started with SendAsync or SubmitAsync
// has resolved.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close waits for background operations, flushes the recorder and closes
// every subscription. Intents issued after Close are rejected.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()

	c.mu.Lock()
	c.stopped = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	if c.records != nil {
		close(c.records)
		<-c.recordDone
	}
	c.logger.Info("session closed")
}

// operationContext derives the context for one network operation.
func (c *Controller) operationContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(parent, c.timeout)
	}
	return context.WithCancel(parent)
}

// classify maps an operation error to its kind and the short reason kept in
// the upload or turn state.
func classify(err error) (ErrorKind, string) {
	var se *backend.ServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindCanceled, ReasonTimedOut
	case errors.Is(err, context.Canceled):
		return KindCanceled, ReasonCanceled
	case errors.As(err, &se):
		return KindServer, se.Error()
	default:
		return KindTransport, err.Error()
	}
}

func failureMessage(kind ErrorKind, fallback string) string {
	if kind == KindCanceled {
		return msgCanceled
	}
	return fallback
}

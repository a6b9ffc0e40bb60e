package main

import (
	"fmt"
	"io"

	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/db"
	"github.com/zulandar/docchat/internal/logging"
	"github.com/zulandar/docchat/internal/session"
	"github.com/zulandar/docchat/internal/transcript"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime is the set of components every command assembles from config.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     *backend.Client
	transcript *transcript.Store // nil when the transcript is disabled

	closers []func() error
}

// newRuntime loads configuration and builds the logger, backend client and
// transcript store. Warnings are echoed to console when it is non-nil.
func newRuntime(configPath string, console io.Writer) (*runtime, error) {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Opts{
		File:    cfg.Log.File,
		Level:   cfg.Log.Level,
		Console: console,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	rt.client, err = backend.NewClient(backend.ClientOpts{
		BaseURL: cfg.Backend.URL,
		UserID:  cfg.Backend.UserID,
		Logger:  logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	if db.Enabled(cfg.Transcript) {
		gormDB, err := openTranscriptDB(cfg.Transcript)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if sqlDB, err := gormDB.DB(); err == nil {
			rt.closers = append([]func() error{sqlDB.Close}, rt.closers...)
		}
		rt.transcript, err = transcript.NewStore(transcript.StoreOpts{DB: gormDB, Backend: cfg.Backend.URL})
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func openTranscriptDB(cfg config.TranscriptConfig) (*gorm.DB, error) {
	gormDB, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// newController builds a session controller wired to the runtime's backend
// and transcript.
func (rt *runtime) newController() (*session.Controller, error) {
	opts := session.Opts{
		Backend:           rt.client,
		Logger:            rt.logger,
		Greeting:          rt.cfg.Session.Greeting,
		ResetMessage:      rt.cfg.Session.ResetMessage,
		NoAnswerMessage:   rt.cfg.Session.NoAnswerMessage,
		RequestTimeout:    rt.cfg.Backend.Timeout,
		RollbackOnFailure: rt.cfg.Session.RollbackOnFailure,
		MaxDocumentBytes:  rt.cfg.Session.MaxDocumentBytes,
		RecordTimeout:     rt.cfg.Transcript.Timeout,
	}
	if rt.transcript != nil {
		opts.Recorder = rt.transcript
	}
	return session.New(opts)
}

// Close releases everything the runtime opened, newest first.
func (rt *runtime) Close() error {
	var first error
	for _, c := range rt.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

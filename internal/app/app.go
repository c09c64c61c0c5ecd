package app

import (
	"context"
	"errors"
	"time"

	"studypal/pkg/ai"
	"studypal/pkg/queue"
	"studypal/pkg/storage"
	"studypal/pkg/store"
)

// JobQueue enqueues extraction work for uploaded documents.
type JobQueue interface {
	Enqueue(ctx context.Context, documentID string) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	Store          store.Store
	Objects        storage.ObjectStore
	Queue          JobQueue
	Responder      *ai.Responder
	AITimeout      time.Duration
	MaxUploadBytes int64
}

// App is the core application service wiring storage, extraction, and
// chat logic together.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	queue          JobQueue
	responder      *ai.Responder
	aiTimeout      time.Duration
	maxUploadBytes int64
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Responder == nil {
		cfg.Responder = ai.NewResponder(nil, "")
	}
	aiTimeout := cfg.AITimeout
	if aiTimeout <= 0 {
		aiTimeout = 60 * time.Second
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		queue:          cfg.Queue,
		responder:      cfg.Responder,
		aiTimeout:      aiTimeout,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

// Store exposes the underlying data store for handlers that resolve
// users and account links directly.
func (a *App) Store() store.Store {
	return a.store
}

// ResponderConfigured reports whether AI features are available.
func (a *App) ResponderConfigured() bool {
	return a.responder.Configured()
}

// Package worker decouples story persistence from the response path. A
// generation request answers the client first; the durable write happens
// here, afterwards, with failures landing in a dead-letter log instead of
// the client's response.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"autostory/internal/domain"
)

const persistTimeout = 30 * time.Second

// Task is one pending story persistence.
type Task struct {
	Record    domain.InputRecord
	Narrative string
}

// Store is the subset of the version store the persister needs.
type Store interface {
	CreateStory(ctx context.Context, rec domain.InputRecord, narrative string) error
}

// Persister runs a single background goroutine draining a bounded queue.
type Persister struct {
	store  Store
	logger zerolog.Logger
	tasks  chan Task
	done   chan struct{}
}

func NewPersister(store Store, logger zerolog.Logger, queueSize int) *Persister {
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &Persister{
		store:  store,
		logger: logger,
		tasks:  make(chan Task, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue hands a story off for persistence. It never blocks the response
// path: a full queue sends the task straight to the dead-letter log.
func (p *Persister) Enqueue(t Task) {
	select {
	case p.tasks <- t:
	default:
		p.deadLetter(t, errors.New("persist queue full"))
	}
}

func (p *Persister) run() {
	defer close(p.done)
	for t := range p.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := p.store.CreateStory(ctx, t.Record, t.Narrative)
		cancel()
		if err != nil {
			p.deadLetter(t, err)
			continue
		}
		p.logger.Debug().Str("story_id", t.Record.StoryID).Msg("persister: story persisted")
	}
}

// deadLetter records the full payload so a failed write can be replayed by
// hand from the logs. The client was already answered; this is the only
// remaining failure channel.
func (p *Persister) deadLetter(t Task, err error) {
	p.logger.Error().
		Err(err).
		Str("story_id", t.Record.StoryID).
		Str("image_reference", t.Record.ImageReference).
		Str("user_text", t.Record.UserText).
		Str("formato", string(t.Record.Format)).
		Str("tono", string(t.Record.Tone)).
		Str("narrative", t.Narrative).
		Msg("persister: dead-letter")
}

// Close stops intake and waits for queued tasks to drain, bounded by ctx.
func (p *Persister) Close(ctx context.Context) error {
	close(p.tasks)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

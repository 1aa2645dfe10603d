package service

import (
	"context"
	"log"
	"time"

	"github.com/edulabs/tutor-gateway/internal/models"
	"github.com/edulabs/tutor-gateway/internal/repository"
)

// ChatLogWriter persists completed tutor exchanges in the background. Writes
// are batched so the chat handler never waits on Postgres; a full queue
// drops the record rather than blocking a live request.
type ChatLogWriter struct {
	repo     *repository.ChatLogRepository
	queue    chan models.ChatRecord
	stopChan chan struct{}
	done     chan struct{}
}

const (
	chatLogBatchSize     = 100
	chatLogFlushInterval = 5 * time.Second
)

func NewChatLogWriter(repo *repository.ChatLogRepository, bufferSize int) *ChatLogWriter {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	return &ChatLogWriter{
		repo:     repo,
		queue:    make(chan models.ChatRecord, bufferSize),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush worker.
func (w *ChatLogWriter) Start() {
	go w.run()
}

// Stop flushes what is queued and stops the worker.
func (w *ChatLogWriter) Stop() {
	close(w.stopChan)
	<-w.done
}

// Enqueue queues a record for persistence. Never blocks.
func (w *ChatLogWriter) Enqueue(record models.ChatRecord) {
	select {
	case w.queue <- record:
	default:
		log.Printf("chatlog: queue full, dropping record for user %s", record.UserID)
	}
}

func (w *ChatLogWriter) run() {
	defer close(w.done)

	batch := make([]models.ChatRecord, 0, chatLogBatchSize)
	ticker := time.NewTicker(chatLogFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := w.repo.CreateBatch(ctx, batch); err != nil {
			log.Printf("chatlog: batch insert of %d records failed: %v", len(batch), err)
		}
		cancel()

		batch = batch[:0]
	}

	for {
		select {
		case record := <-w.queue:
			batch = append(batch, record)
			if len(batch) >= chatLogBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stopChan:
			// Drain whatever arrived before shutdown
			for {
				select {
				case record := <-w.queue:
					batch = append(batch, record)
				default:
					flush()
					return
				}
			}
		}
	}
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chatvault/internal/platform/objectstore"
	"chatvault/internal/platform/rabbitmq"
)

// StorageCleanupWorker consumes cleanup jobs for deleted chats and removes
// their storage prefixes from every attachment bucket. Cleanup runs off
// the request path: the chat row and messages are long gone by the time a
// job is handled, and a redelivered job is harmless because prefix deletes
// are idempotent.
type StorageCleanupWorker struct {
	conn      *amqp.Connection
	buckets   []objectstore.Store
	queueName string
	prefixFn  func(chatID string) string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStorageCleanupWorker(conn *amqp.Connection, buckets []objectstore.Store, queueName string, prefixFn func(chatID string) string) *StorageCleanupWorker {
	return &StorageCleanupWorker{
		conn:      conn,
		buckets:   buckets,
		queueName: queueName,
		prefixFn:  prefixFn,
	}
}

func (w *StorageCleanupWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job rabbitmq.CleanupJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("worker decode cleanup job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.cleanup(workerCtx, job); err != nil {
					log.Printf("worker storage cleanup failed: %v", err)
					_ = d.Nack(false, true)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *StorageCleanupWorker) cleanup(ctx context.Context, job rabbitmq.CleanupJob) error {
	jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var firstErr error
	for _, chatID := range job.ChatIDs {
		prefix := w.prefixFn(chatID)
		for _, bucket := range w.buckets {
			if err := bucket.DeletePrefix(jobCtx, prefix); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (w *StorageCleanupWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Package queue implements a SQLite-backed message bus with at-least-once
// delivery. Messages become invisible for a visibility timeout when
// received and reappear unless acked; messages delivered too many times
// move to a dead-letter table instead of being redelivered forever.
//
// Two receive disciplines are offered. Receive delivers the oldest
// visible message in a queue. ReceiveOrdered additionally holds back any
// message that is not the head of its partition, so messages sharing a
// partition key are processed strictly in enqueue order even with many
// concurrent consumers.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message is one delivered queue entry. ReceiveCount includes the
// delivery that produced this value.
type Message struct {
	ID           string
	Queue        string
	PartitionKey string
	Body         []byte
	ReceiveCount int
	EnqueuedAt   time.Time
}

// Options configures a Bus.
type Options struct {
	// Visibility is how long a received message stays invisible before it
	// is redelivered. Must exceed the longest handler execution.
	Visibility time.Duration
	// MaxReceive is the delivery ceiling per message. A message claimed
	// more than MaxReceive times is dead-lettered instead of delivered.
	MaxReceive int
}

// Bus is a message bus backed by the queue_messages table.
type Bus struct {
	db         *sql.DB
	visibility time.Duration
	maxReceive int
	logger     *slog.Logger
}

// NewBus creates a bus on the given database.
func NewBus(db *sql.DB, opts Options, logger *slog.Logger) *Bus {
	if opts.Visibility <= 0 {
		opts.Visibility = 2 * time.Minute
	}
	if opts.MaxReceive < 1 {
		opts.MaxReceive = 1
	}
	return &Bus{
		db:         db,
		visibility: opts.Visibility,
		maxReceive: opts.MaxReceive,
		logger:     logger.With("component", "queue"),
	}
}

// Enqueue appends a message and returns its id. Messages are visible
// immediately. IDs are ULIDs, so id order is enqueue order.
func (b *Bus) Enqueue(ctx context.Context, queue, partitionKey string, body []byte) (string, error) {
	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO queue_messages (id, queue, partition_key, body, visible_at, receive_count, enqueued_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		id, queue, partitionKey, string(body), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}
	return id, nil
}

// Receive claims the oldest visible message in the queue, or nil when the
// queue has nothing deliverable. The claim and the visibility update are
// one statement, so concurrent consumers never claim the same message.
func (b *Bus) Receive(ctx context.Context, queue string) (*Message, error) {
	return b.receive(ctx, queue, false)
}

// ReceiveOrdered is Receive restricted to head-of-partition messages.
// While the head of a partition is in flight or delayed, the rest of that
// partition stays hidden; other partitions are unaffected.
func (b *Bus) ReceiveOrdered(ctx context.Context, queue string) (*Message, error) {
	return b.receive(ctx, queue, true)
}

func (b *Bus) receive(ctx context.Context, queue string, ordered bool) (*Message, error) {
	for {
		msg, err := b.claim(ctx, queue, ordered)
		if err != nil || msg == nil {
			return msg, err
		}
		// The claim that crosses the ceiling is not delivered. Moving the
		// message aside here (rather than at release time) also catches
		// workers that crash without releasing.
		if msg.ReceiveCount > b.maxReceive {
			if err := b.deadLetter(ctx, msg.ID, "max receive count exceeded"); err != nil {
				return nil, err
			}
			b.logger.Warn("message dead-lettered",
				"queue", queue,
				"message_id", msg.ID,
				"receive_count", msg.ReceiveCount,
			)
			continue
		}
		return msg, nil
	}
}

func (b *Bus) claim(ctx context.Context, queue string, ordered bool) (*Message, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)
	invisibleUntil := now.Add(b.visibility).Format(time.RFC3339)

	candidate := `
		SELECT id FROM queue_messages
		WHERE queue = ? AND visible_at <= ?
		ORDER BY id ASC
		LIMIT 1`
	if ordered {
		candidate = `
		SELECT m.id FROM queue_messages m
		WHERE m.queue = ? AND m.visible_at <= ?
			AND m.id = (
				SELECT MIN(h.id) FROM queue_messages h
				WHERE h.queue = m.queue AND h.partition_key = m.partition_key
			)
		ORDER BY m.id ASC
		LIMIT 1`
	}

	query := `
		UPDATE queue_messages
		SET visible_at = ?, receive_count = receive_count + 1
		WHERE id = (` + candidate + `)
		RETURNING id, queue, partition_key, body, receive_count, enqueued_at`

	var msg Message
	var body, enqueuedAt string
	err := b.db.QueryRowContext(ctx, query, invisibleUntil, queue, nowStr).Scan(
		&msg.ID, &msg.Queue, &msg.PartitionKey, &body, &msg.ReceiveCount, &enqueuedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim message: %w", err)
	}

	msg.Body = []byte(body)
	msg.EnqueuedAt, _ = time.Parse(time.RFC3339, enqueuedAt)
	return &msg, nil
}

// Ack removes a message for good. Acking a message that already
// disappeared (acked twice, or dead-lettered meanwhile) is not an error.
func (b *Bus) Ack(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Release makes a message deliverable again after the given delay. Used
// when a handler wants redelivery sooner (or later) than the visibility
// timeout would allow, typically for rate-limited fetches.
func (b *Bus) Release(ctx context.Context, id string, delay time.Duration) error {
	visibleAt := time.Now().UTC().Add(delay).Format(time.RFC3339)
	_, err := b.db.ExecContext(ctx,
		`UPDATE queue_messages SET visible_at = ? WHERE id = ?`,
		visibleAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}
	return nil
}

// Extend pushes a message's redelivery further out. Long-running handlers
// call this to keep their claim while they work.
func (b *Bus) Extend(ctx context.Context, id string, visibility time.Duration) error {
	visibleAt := time.Now().UTC().Add(visibility).Format(time.RFC3339)
	_, err := b.db.ExecContext(ctx,
		`UPDATE queue_messages SET visible_at = ? WHERE id = ?`,
		visibleAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to extend message visibility: %w", err)
	}
	return nil
}

// Depth returns the number of unacked messages in a queue, visible or not.
func (b *Bus) Depth(ctx context.Context, queue string) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_messages WHERE queue = ?`, queue,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue depth: %w", err)
	}
	return count, nil
}

// DeadLetterCount returns the number of dead-lettered messages for a queue.
func (b *Bus) DeadLetterCount(ctx context.Context, queue string) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_dead_letters WHERE queue = ?`, queue,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}

// deadLetter moves a message out of the live table, preserving its body
// for inspection.
func (b *Bus) deadLetter(ctx context.Context, id, reason string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO queue_dead_letters (id, queue, partition_key, body, receive_count, reason, enqueued_at, dead_lettered_at)
		SELECT id, queue, partition_key, body, receive_count, ?, enqueued_at, ?
		FROM queue_messages WHERE id = ?`,
		reason, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove dead-lettered message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dead letter: %w", err)
	}
	committed = true
	return nil
}

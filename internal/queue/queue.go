// Package queue implements the per-task-type distributed queue over the
// coordinator: durable across restarts, safe for multiple consumers,
// with standard (FIFO, optional future delivery) and priority
// (smallest-key-first) dispense modes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"flowdag/internal/coordinator"
	"flowdag/internal/model"
	"flowdag/internal/observability"

	"golang.org/x/time/rate"
)

// Callback processes one dequeued task. Returning a non-nil,
// non-Poison error leaves the entry in place for another consumer to
// retry (infrastructure failure); returning Poison(err) or a nil error
// both remove the entry — the worker executor always resolves to a
// terminal success/failure record, so only infra errors get a retry.
type Callback func(ctx context.Context, task model.ExecutableTask) error

// poisonErr wraps an error that should still remove the queue entry.
type poisonErr struct{ err error }

func (p *poisonErr) Error() string { return p.err.Error() }
func (p *poisonErr) Unwrap() error { return p.err }

// Poison marks err as terminal: the callback failed in a way that will
// never succeed on retry, so the entry should be removed anyway.
func Poison(err error) error { return &poisonErr{err: err} }

func isPoison(err error) bool {
	_, ok := err.(*poisonErr)
	return ok
}

// Queue is a single task-type's durable queue.
type Queue struct {
	coord       coordinator.Client
	taskType    model.TaskType
	path        string
	lockPath    string
	logger      *slog.Logger
	instruments *observability.Instruments
}

// New returns the queue for taskType, rooted under basePath (typically
// "/flowdag"). instruments may be nil.
func New(coord coordinator.Client, basePath string, taskType model.TaskType, logger *slog.Logger, instruments *observability.Instruments) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		coord:       coord,
		taskType:    taskType,
		path:        fmt.Sprintf("%s/queue/%s-%s", basePath, taskType.Name, taskType.Version),
		lockPath:    fmt.Sprintf("%s/queue-locks/%s-%s", basePath, taskType.Name, taskType.Version),
		logger:      logger.With("component", "queue", "task_type", taskType.Name),
		instruments: instruments,
	}
}

// Enqueue writes task's entry. specialMeta is the opaque priority-or-
// delay integer from model.SpecialMetaKey: for PRIORITY mode it is the
// priority (ascending = sooner); for DELAY mode it is an epoch-millis
// delivery time. It is absent (nil) for other modes, making the entry
// immediately dispensable in FIFO order.
func (q *Queue) Enqueue(ctx context.Context, task model.ExecutableTask, specialMeta *int64) error {
	payload, err := encodeEntry(task, q.taskType.Mode, specialMeta)
	if err != nil {
		return fmt.Errorf("queue: encode entry: %w", err)
	}

	switch q.taskType.Mode {
	case model.ModePriority:
		priority := int64(0)
		if specialMeta != nil {
			priority = *specialMeta
		}
		// A dedicated sequence segment keeps ties FIFO-ordered within a
		// priority bucket.
		key := fmt.Sprintf("%010d", priority)
		_, err = q.coord.CreateSeq(ctx, q.path+"/"+key, payload)
	default:
		_, err = q.coord.CreateSeq(ctx, q.path, payload)
	}
	if err != nil {
		return err
	}
	q.instruments.RecordQueueDepth(ctx, q.taskType.Name, 1)
	return nil
}

type entry struct {
	Task        model.ExecutableTask `json:"task"`
	DeliverAtMs int64                `json:"deliver_at_ms,omitempty"`
}

// encodeEntry builds the stored entry. In DELAY mode the delivery time is
// specialMeta when given, else the value under model.SpecialMetaKey.
func encodeEntry(task model.ExecutableTask, mode model.QueueMode, specialMeta *int64) ([]byte, error) {
	var deliverAt int64
	if mode == model.ModeDelay {
		if specialMeta != nil {
			deliverAt = *specialMeta
		} else if v, ok := task.Metadata[model.SpecialMetaKey]; ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				deliverAt = n
			}
		}
	}
	stripped := task
	if stripped.Metadata != nil {
		m := make(map[string]string, len(stripped.Metadata))
		for k, v := range stripped.Metadata {
			if k == model.SpecialMetaKey {
				continue
			}
			m[k] = v
		}
		stripped.Metadata = m
	}
	return json.Marshal(entry{Task: stripped, DeliverAtMs: deliverAt})
}

// Consume attaches a consumer that invokes cb for each dispensable entry,
// blocking until ctx is cancelled. Multiple consumers (in this process or
// others) may call Consume concurrently on the same Queue/path; each
// entry is handed to exactly one of them via a per-entry ephemeral lock.
func (q *Queue) Consume(ctx context.Context, cb Callback) error {
	limiter := rate.NewLimiter(rate.Every(200*time.Millisecond), 1)
	watch := q.coord.Watch(ctx, q.path)
	pollInterval := 500 * time.Millisecond

	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		q.drainOnce(ctx, cb)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watch:
		case <-time.After(pollInterval):
		}
	}
}

// drainOnce attempts to claim and process every currently-dispensable
// entry once; called repeatedly by Consume's loop.
func (q *Queue) drainOnce(ctx context.Context, cb Callback) {
	children, err := q.coord.Children(ctx, q.path)
	if err != nil {
		q.logger.Error("list queue entries failed", "error", err)
		return
	}

	candidates := filterDispensable(children, q.taskType.Mode)
	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return
		default:
		}
		q.tryClaim(ctx, c, cb)
	}
}

func filterDispensable(children []coordinator.Node, mode model.QueueMode) []coordinator.Node {
	now := time.Now().UnixMilli()
	var out []coordinator.Node
	for _, c := range children {
		if strings.HasSuffix(c.Path, "/.seq") {
			continue
		}
		e, err := decodeEntry(c.Value)
		if err != nil {
			continue
		}
		if e.DeliverAtMs > 0 && e.DeliverAtMs > now {
			continue
		}
		out = append(out, c)
	}
	// Both modes dispense in ascending path order: standard mode's
	// zero-padded sequence sorts as a FIFO queue, priority mode's
	// zero-padded priority prefix plus nested sequence sorts smallest-
	// priority-first with FIFO tie-break within a priority bucket.
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func decodeEntry(b []byte) (entry, error) {
	var e entry
	err := json.Unmarshal(b, &e)
	return e, err
}

func (q *Queue) tryClaim(ctx context.Context, node coordinator.Node, cb Callback) {
	lockPath := q.lockPath + "/" + lockKeyFor(q.path, node.Path)
	lock, err := q.coord.NewEphemeral(ctx, lockPath, nil)
	if err != nil {
		// Someone else holds the lock, or lost the race; move on.
		return
	}

	e, err := decodeEntry(node.Value)
	if err != nil {
		q.logger.Error("decode queue entry failed, removing poisoned entry", "path", node.Path, "error", err)
		q.coord.Delete(ctx, node.Path)
		q.instruments.RecordQueueDepth(ctx, q.taskType.Name, -1)
		lock.Release(ctx)
		return
	}

	cbErr := cb(ctx, e.Task)
	if cbErr != nil && !isPoison(cbErr) {
		// Infrastructure failure: leave the entry, release the lock so
		// another consumer (or this one, later) can retry.
		q.logger.Warn("consumer callback failed, leaving entry for retry", "path", node.Path, "error", cbErr)
		lock.Release(ctx)
		return
	}

	if cbErr != nil {
		q.logger.Warn("consumer callback poisoned, removing entry", "path", node.Path, "error", cbErr)
	}

	if err := q.coord.Delete(ctx, node.Path); err != nil {
		q.logger.Error("failed to delete processed entry", "path", node.Path, "error", err)
	} else {
		q.instruments.RecordQueueDepth(ctx, q.taskType.Name, -1)
	}
	lock.Release(ctx)
}

// lockKeyFor derives a lock-node name from node's path relative to the
// queue root, flattening any nesting (priority buckets) so two entries
// at different priorities never collide on the same per-bucket sequence
// number.
func lockKeyFor(queuePath, nodePath string) string {
	rel := strings.TrimPrefix(nodePath, queuePath+"/")
	return strings.ReplaceAll(rel, "/", "-")
}

// Package memcoord is an in-process fake of coordinator.Client used by
// unit tests for the scheduler, queue, and executor. It preserves the
// version-check, ephemeral-lease, and watch semantics those components
// depend on without requiring a live etcd cluster, hand-rolled against
// our own interface rather than generated from a driver.
package memcoord

import (
	"context"
	"sort"
	"strings"
	"sync"

	"flowdag/internal/coordinator"
)

type entry struct {
	value   []byte
	version int64
}

// Client is an in-memory coordinator.Client. Safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	nodes    map[string]*entry
	seq      int64
	watchers map[string][]chan struct{}
	leaders  map[string]*leaderState
	closed   bool
}

type leaderState struct {
	mu       sync.Mutex
	holder   string
	waiters  []chan struct{}
	resigned chan struct{}
}

// New returns an empty in-memory coordinator.
func New() *Client {
	return &Client{
		nodes:    make(map[string]*entry),
		watchers: make(map[string][]chan struct{}),
		leaders:  make(map[string]*leaderState),
	}
}

func clean(path string) string {
	return strings.TrimRight(path, "/")
}

func (c *Client) notifyLocked(path string) {
	for prefix, chans := range c.watchers {
		if strings.HasPrefix(path, prefix) {
			for _, ch := range chans {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (c *Client) Create(ctx context.Context, path string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = clean(path)
	if _, ok := c.nodes[path]; ok {
		return coordinator.ErrAlreadyExists
	}
	c.seq++
	c.nodes[path] = &entry{value: append([]byte(nil), value...), version: c.seq}
	c.notifyLocked(path)
	return nil
}

func (c *Client) CreateSeq(ctx context.Context, prefix string, value []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	path := clean(prefix) + "/" + seqName(c.seq)
	c.nodes[path] = &entry{value: append([]byte(nil), value...), version: c.seq}
	c.notifyLocked(path)
	return path, nil
}

func seqName(seq int64) string {
	const base = "0000000000000000000"
	s := base
	digits := []byte{}
	n := seq
	if n == 0 {
		digits = []byte{'0'}
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	pad := len(base) - len(digits)
	if pad < 0 {
		pad = 0
	}
	return s[:pad] + string(digits)
}

func (c *Client) Get(ctx context.Context, path string) (coordinator.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = clean(path)
	e, ok := c.nodes[path]
	if !ok {
		return coordinator.Node{}, coordinator.ErrNotFound
	}
	return coordinator.Node{Path: path, Value: append([]byte(nil), e.value...), Version: e.version}, nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = clean(path)
	delete(c.nodes, path)
	c.notifyLocked(path)
	return nil
}

func (c *Client) DeleteIfVersion(ctx context.Context, path string, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = clean(path)
	e, ok := c.nodes[path]
	if !ok {
		return coordinator.ErrNotFound
	}
	if e.version != version {
		return coordinator.ErrVersionConflict
	}
	delete(c.nodes, path)
	c.notifyLocked(path)
	return nil
}

func (c *Client) UpdateIfVersion(ctx context.Context, path string, value []byte, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = clean(path)
	e, ok := c.nodes[path]
	if !ok {
		return coordinator.ErrNotFound
	}
	if e.version != version {
		return coordinator.ErrVersionConflict
	}
	c.seq++
	e.value = append([]byte(nil), value...)
	e.version = c.seq
	c.notifyLocked(path)
	return nil
}

func (c *Client) Children(ctx context.Context, prefix string) ([]coordinator.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := clean(prefix) + "/"
	var out []coordinator.Node
	for path, e := range c.nodes {
		if strings.HasPrefix(path, p) {
			out = append(out, coordinator.Node{Path: path, Value: append([]byte(nil), e.value...), Version: e.version})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Client) Watch(ctx context.Context, prefix string) <-chan struct{} {
	c.mu.Lock()
	ch := make(chan struct{}, 1)
	prefix = clean(prefix) + "/"
	c.watchers[prefix] = append(c.watchers[prefix], ch)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		chans := c.watchers[prefix]
		for i, w := range chans {
			if w == ch {
				c.watchers[prefix] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

type memLock struct {
	c    *Client
	path string
}

func (l *memLock) Release(ctx context.Context) error {
	return l.c.Delete(ctx, l.path)
}

func (c *Client) NewEphemeral(ctx context.Context, path string, value []byte) (coordinator.Lock, error) {
	if err := c.Create(ctx, path, value); err != nil {
		return nil, err
	}
	lock := &memLock{c: c, path: path}
	go func() {
		<-ctx.Done()
		c.Delete(context.Background(), path)
	}()
	return lock, nil
}

type memLeadership struct {
	state *leaderState
	id    string
	done  chan struct{}
}

func (l *memLeadership) Resign(ctx context.Context) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if l.state.holder == l.id {
		l.state.holder = ""
		if len(l.state.waiters) > 0 {
			next := l.state.waiters[0]
			l.state.waiters = l.state.waiters[1:]
			close(next)
		}
	}
	return nil
}

func (l *memLeadership) Done() <-chan struct{} { return l.done }

func (c *Client) Elect(ctx context.Context, electionPath, candidateID string) (coordinator.Leadership, error) {
	c.mu.Lock()
	state, ok := c.leaders[electionPath]
	if !ok {
		state = &leaderState{}
		c.leaders[electionPath] = state
	}
	c.mu.Unlock()

	state.mu.Lock()
	if state.holder == "" {
		state.holder = candidateID
		done := make(chan struct{})
		state.mu.Unlock()
		return &memLeadership{state: state, id: candidateID, done: done}, nil
	}
	wait := make(chan struct{})
	state.waiters = append(state.waiters, wait)
	state.mu.Unlock()

	select {
	case <-wait:
		state.mu.Lock()
		state.holder = candidateID
		done := make(chan struct{})
		state.mu.Unlock()
		return &memLeadership{state: state, id: candidateID, done: done}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Package etcdcoord implements coordinator.Client on top of etcd's
// client/v3 concurrency primitives for session-scoped locking and
// leader election. etcd leases model ephemeral nodes; concurrency.Session
// + concurrency.Election model ephemeral-sequential leader election; a
// lease-scoped key models a per-queue-entry lock.
package etcdcoord

import (
	"context"
	"fmt"
	"strings"

	"flowdag/internal/coordinator"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// Client wraps an etcd v3 client to satisfy coordinator.Client.
type Client struct {
	cli        *clientv3.Client
	sessionTTL int
	session    *concurrency.Session
}

// Config configures the etcd-backed coordinator client.
type Config struct {
	Endpoints  []string
	SessionTTL int // seconds; default 10, matches a typical etcd lease TTL
}

// New dials etcd and establishes the shared session used for ephemeral
// nodes and leader election.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("etcdcoord: dial: %w", err)
	}
	sess, err := concurrency.NewSession(cli, concurrency.WithTTL(cfg.SessionTTL))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcdcoord: session: %w", err)
	}
	return &Client{cli: cli, sessionTTL: cfg.SessionTTL, session: sess}, nil
}

func clean(path string) string { return strings.TrimRight(path, "/") }

func (c *Client) Create(ctx context.Context, path string, value []byte) error {
	path = clean(path)
	txn := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(path), "=", 0)).
		Then(clientv3.OpPut(path, string(value))).
		Else()
	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("etcdcoord: create %s: %w", path, err)
	}
	if !resp.Succeeded {
		return coordinator.ErrAlreadyExists
	}
	return nil
}

// CreateSeq uses a dedicated counter key under prefix+"/.seq" bumped via
// an optimistic Txn loop, then writes the entry at prefix/<seq>. This
// gives a globally monotonic, zero-padded sequence independent of etcd's
// per-key mod-revision, which standard-mode FIFO ordering needs.
func (c *Client) CreateSeq(ctx context.Context, prefix string, value []byte) (string, error) {
	prefix = clean(prefix)
	counterKey := prefix + "/.seq"
	for {
		cur, err := c.cli.Get(ctx, counterKey)
		if err != nil {
			return "", fmt.Errorf("etcdcoord: read seq counter: %w", err)
		}
		var rev int64
		var next int64 = 1
		if len(cur.Kvs) > 0 {
			rev = cur.Kvs[0].ModRevision
			fmt.Sscanf(string(cur.Kvs[0].Value), "%d", &next)
			next++
		}
		entryPath := fmt.Sprintf("%s/%020d", prefix, next)
		txn := c.cli.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(counterKey), "=", rev)).
			Then(
				clientv3.OpPut(counterKey, fmt.Sprintf("%d", next)),
				clientv3.OpPut(entryPath, string(value)),
			).
			Else()
		resp, err := txn.Commit()
		if err != nil {
			return "", fmt.Errorf("etcdcoord: create seq: %w", err)
		}
		if resp.Succeeded {
			return entryPath, nil
		}
		// lost the race on the counter; retry
	}
}

func (c *Client) Get(ctx context.Context, path string) (coordinator.Node, error) {
	path = clean(path)
	resp, err := c.cli.Get(ctx, path)
	if err != nil {
		return coordinator.Node{}, fmt.Errorf("etcdcoord: get %s: %w", path, err)
	}
	if len(resp.Kvs) == 0 {
		return coordinator.Node{}, coordinator.ErrNotFound
	}
	kv := resp.Kvs[0]
	return coordinator.Node{Path: path, Value: kv.Value, Version: kv.ModRevision}, nil
}

func (c *Client) Delete(ctx context.Context, path string) error {
	path = clean(path)
	_, err := c.cli.Delete(ctx, path)
	if err != nil {
		return fmt.Errorf("etcdcoord: delete %s: %w", path, err)
	}
	return nil
}

func (c *Client) DeleteIfVersion(ctx context.Context, path string, version int64) error {
	path = clean(path)
	txn := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(path), "=", version)).
		Then(clientv3.OpDelete(path)).
		Else()
	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("etcdcoord: delete-if-version %s: %w", path, err)
	}
	if !resp.Succeeded {
		return coordinator.ErrVersionConflict
	}
	return nil
}

func (c *Client) UpdateIfVersion(ctx context.Context, path string, value []byte, version int64) error {
	path = clean(path)
	txn := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(path), "=", version)).
		Then(clientv3.OpPut(path, string(value))).
		Else()
	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("etcdcoord: update-if-version %s: %w", path, err)
	}
	if !resp.Succeeded {
		return coordinator.ErrVersionConflict
	}
	return nil
}

func (c *Client) Children(ctx context.Context, prefix string) ([]coordinator.Node, error) {
	p := clean(prefix) + "/"
	resp, err := c.cli.Get(ctx, p, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("etcdcoord: children %s: %w", p, err)
	}
	out := make([]coordinator.Node, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		if strings.HasSuffix(key, "/.seq") {
			continue
		}
		out = append(out, coordinator.Node{Path: key, Value: kv.Value, Version: kv.ModRevision})
	}
	return out, nil
}

func (c *Client) Watch(ctx context.Context, prefix string) <-chan struct{} {
	out := make(chan struct{}, 1)
	p := clean(prefix) + "/"
	wch := c.cli.Watch(ctx, p, clientv3.WithPrefix())
	go func() {
		defer close(out)
		for {
			select {
			case _, ok := <-wch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type etcdLock struct {
	cli  *Client
	path string
}

func (l *etcdLock) Release(ctx context.Context) error {
	return l.cli.Delete(ctx, l.path)
}

// NewEphemeral attaches value to the client's shared session lease, so it
// is deleted automatically if the session expires (process death,
// sustained connection loss).
func (c *Client) NewEphemeral(ctx context.Context, path string, value []byte) (coordinator.Lock, error) {
	path = clean(path)
	txn := c.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(path), "=", 0)).
		Then(clientv3.OpPut(path, string(value), clientv3.WithLease(c.session.Lease()))).
		Else()
	resp, err := txn.Commit()
	if err != nil {
		return nil, fmt.Errorf("etcdcoord: ephemeral %s: %w", path, err)
	}
	if !resp.Succeeded {
		return nil, coordinator.ErrAlreadyExists
	}
	return &etcdLock{cli: c, path: path}, nil
}

type etcdLeadership struct {
	election *concurrency.Election
	session  *concurrency.Session
	done     chan struct{}
}

func (l *etcdLeadership) Resign(ctx context.Context) error {
	return l.election.Resign(ctx)
}

func (l *etcdLeadership) Done() <-chan struct{} { return l.done }

// Elect blocks until this process wins the election under electionPath,
// using concurrency.Election, itself built on ephemeral-sequential keys
// under the hood.
func (c *Client) Elect(ctx context.Context, electionPath, candidateID string) (coordinator.Leadership, error) {
	election := concurrency.NewElection(c.session, clean(electionPath))
	if err := election.Campaign(ctx, candidateID); err != nil {
		return nil, fmt.Errorf("etcdcoord: campaign: %w", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-c.session.Done()
	}()
	return &etcdLeadership{election: election, session: c.session, done: done}, nil
}

func (c *Client) Close() error {
	c.session.Close()
	return c.cli.Close()
}

// Package nntp implements the Server Pool: one connection pool per
// configured server, priority-ordered failover across servers for a
// given article, and a bounded semaphore capping the connections open
// per server. Each connection carries one request at a time; requests are
// not pipelined. This is the same non-blocking-semaphore-plus-failover
// technique the legacy provider manager used, generalized to a
// reconnecting conn type and an explicit per-server auth cooldown.
package nntp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// authCooldown is how long a server is skipped after an authentication
// failure, so a misconfigured server doesn't eat a failover attempt on
// every single article.
const authCooldown = 60 * time.Second

type pooledServer struct {
	cfg domain.ServerConfig
	sem chan struct{}
	idle chan *conn

	mu            sync.Mutex
	cooldownUntil time.Time
}

func (ps *pooledServer) onCooldown() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Now().Before(ps.cooldownUntil)
}

func (ps *pooledServer) startCooldown() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.cooldownUntil = time.Now().Add(authCooldown)
}

func (ps *pooledServer) acquireConn() *conn {
	select {
	case c := <-ps.idle:
		return c
	default:
		return newConn(ps.cfg)
	}
}

func (ps *pooledServer) release(c *conn) {
	select {
	case ps.idle <- c:
	default:
		c.close()
	}
}

// Pool fetches NNTP article bodies across a set of priority-ordered
// servers, failing over on a per-article, per-server basis.
type Pool struct {
	servers []*pooledServer
}

// NewPool constructs a Pool from static server configuration, sorted by
// ascending priority (0 is tried first).
func NewPool(cfgs []domain.ServerConfig) (*Pool, error) {
	if len(cfgs) == 0 {
		return nil, domain.ErrNoServersConfigured
	}

	servers := make([]*pooledServer, 0, len(cfgs))
	for _, cfg := range cfgs {
		max := cfg.MaxConnection
		if max <= 0 {
			max = 1
		}
		servers = append(servers, &pooledServer{
			cfg:  cfg,
			sem:  make(chan struct{}, max),
			idle: make(chan *conn, max),
		})
	}

	sort.Slice(servers, func(i, j int) bool {
		return servers[i].cfg.Priority < servers[j].cfg.Priority
	})

	return &Pool{servers: servers}, nil
}

// TotalCapacity is the sum of MaxConnection across all servers, used by
// the Engine to size its worker pool.
func (p *Pool) TotalCapacity() int {
	total := 0
	for _, s := range p.servers {
		total += cap(s.sem)
	}
	return total
}

// Fetch retrieves the body of article from whichever eligible server
// answers first, trying servers in priority order and skipping any the
// article is already known missing from or that are in an auth cooldown.
// The returned ReadCloser must be closed by the caller to release the
// connection back to its server's pool.
func (p *Pool) Fetch(ctx context.Context, article *domain.Article, groups []string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if article.MissingFrom == nil {
		article.MissingFrom = make(map[string]bool)
	}

	var lastErr error
	anyBusy := false

	for _, srv := range p.servers {
		if article.MissingFrom[srv.cfg.ID] {
			continue
		}
		if srv.onCooldown() {
			continue
		}

		select {
		case srv.sem <- struct{}{}:
		default:
			anyBusy = true
			continue
		}

		c := srv.acquireConn()
		reader, err := c.fetch(article.MessageID)
		if err != nil {
			srv.release(c)
			<-srv.sem

			switch {
			case errors.Is(err, domain.ErrArticleNotFound):
				article.MissingFrom[srv.cfg.ID] = true
				time.Sleep(100 * time.Millisecond)
				continue
			case errors.Is(err, domain.ErrAuthFailed):
				srv.startCooldown()
				lastErr = err
				continue
			default:
				lastErr = err
				continue
			}
		}

		article.ServerID = srv.cfg.ID
		return &releaseReader{r: reader, release: func() {
			srv.release(c)
			<-srv.sem
		}}, nil
	}

	if len(article.MissingFrom) == len(p.servers) {
		return nil, domain.ErrArticleNotFound
	}
	if lastErr != nil {
		return nil, lastErr
	}
	if anyBusy {
		return nil, domain.ErrProviderBusy
	}
	return nil, fmt.Errorf("%w: all servers unreachable", domain.ErrTransient)
}

// Close tears down every idle connection across every server pool. Safe
// to call once, at shutdown; connections checked out to in-flight fetches
// release themselves independently.
func (p *Pool) Close() {
	for _, srv := range p.servers {
		for {
			select {
			case c := <-srv.idle:
				c.close()
			default:
				goto next
			}
		}
	next:
	}
}

type releaseReader struct {
	r       io.Reader
	release func()
	closed  bool
}

func (rr *releaseReader) Read(p []byte) (int, error) { return rr.r.Read(p) }

func (rr *releaseReader) Close() error {
	if !rr.closed {
		rr.closed = true
		rr.release()
	}
	return nil
}

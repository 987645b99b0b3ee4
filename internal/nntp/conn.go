package nntp

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// conn is one NNTP connection to a single server, lazily dialed and kept
// open across fetches. It is not safe for concurrent use; the pool hands
// out one conn per semaphore slot.
type conn struct {
	cfg  domain.ServerConfig
	text *textproto.Conn
}

func newConn(cfg domain.ServerConfig) *conn {
	return &conn{cfg: cfg}
}

func (c *conn) ensureConnected() error {
	if c.text != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	var rw net.Conn
	var err error

	if c.cfg.TLS {
		rw, err = tls.Dial("tcp", addr, &tls.Config{
			ServerName: c.cfg.Host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		rw, err = net.DialTimeout("tcp", addr, 15*time.Second)
	}
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", domain.ErrTransient, addr, err)
	}

	c.text = textproto.NewConn(rw)

	if _, _, err := c.text.ReadCodeLine(200); err != nil {
		if _, _, err2 := c.text.ReadCodeLine(201); err2 != nil {
			c.text.Close()
			c.text = nil
			return fmt.Errorf("%w: greeting: %v", domain.ErrProtocolError, err)
		}
	}

	if err := c.authenticate(); err != nil {
		c.text.Close()
		c.text = nil
		return err
	}

	return nil
}

func (c *conn) authenticate() error {
	if c.cfg.Username == "" {
		return nil
	}

	if _, err := c.text.Cmd("AUTHINFO USER %s", c.cfg.Username); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	if _, _, err := c.text.ReadCodeLine(381); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
	}

	if _, err := c.text.Cmd("AUTHINFO PASS %s", c.cfg.Password); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	if _, _, err := c.text.ReadCodeLine(281); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
	}

	return nil
}

// fetch issues BODY for msgID and returns the dot-unstuffed article body.
// The returned reader must be drained or the connection left in an
// inconsistent state for the next command.
func (c *conn) fetch(msgID string) (io.Reader, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	formatted := msgID
	if !strings.HasPrefix(formatted, "<") {
		formatted = "<" + formatted + ">"
	}

	if _, err := c.text.Cmd("BODY %s", formatted); err != nil {
		c.invalidate()
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}

	code, msg, err := c.text.ReadCodeLine(222)
	if err != nil {
		if code == 430 {
			return nil, domain.ErrArticleNotFound
		}
		c.invalidate()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProtocolError, msg, err)
	}

	return c.text.DotReader(), nil
}

// invalidate drops the underlying connection so the next fetch redials;
// used after a protocol-level error that leaves the stream state unknown.
func (c *conn) invalidate() {
	if c.text != nil {
		c.text.Close()
		c.text = nil
	}
}

func (c *conn) close() error {
	if c.text == nil {
		return nil
	}
	c.text.Cmd("QUIT")
	err := c.text.Close()
	c.text = nil
	return err
}

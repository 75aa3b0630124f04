// Package mpd wraps the gompd client for the now-playing follower and
// local art lookups.
package mpd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// watchRetryDelay is the pause after a watcher error before events resume.
const watchRetryDelay = time.Second

// ErrNotConnected is returned by Ping before a connection was established.
var ErrNotConnected = errors.New("mpd: not connected")

// Client is a lazily connected MPD command connection. A command that fails
// at the transport level drops the connection and is retried once on a new one;
// protocol errors (ACK) are returned as is.
type Client struct {
	mu       sync.Mutex
	conn     *mpd.Client
	addr     string
	password string
}

// NewClient creates a client for host:port. No connection is made until the
// first command or Connect.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		password: password,
	}
}

// Connect dials MPD now instead of on first use.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	return c.dialLocked()
}

func (c *Client) dialLocked() error {
	log.Info().Str("addr", c.addr).Msg("Connecting to MPD")

	conn, err := mpd.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial mpd %s: %w", c.addr, err)
	}
	if c.password != "" {
		if err := conn.Command("password %s", c.password).OK(); err != nil {
			conn.Close()
			return fmt.Errorf("mpd authentication: %w", err)
		}
	}

	c.conn = conn
	log.Info().Msg("Connected to MPD")
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// do runs fn on a live connection, redialing once after a transport failure.
func (c *Client) do(fn func(conn *mpd.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if c.conn == nil {
			if err := c.dialLocked(); err != nil {
				return err
			}
		}
		err := fn(c.conn)
		if err == nil || !isTransportError(err) || attempt > 0 {
			return err
		}
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting")
		c.dropLocked()
	}
}

// isTransportError reports whether err means the connection is unusable.
// An ACK from MPD leaves the connection intact.
func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		// gompd does not always wrap the underlying read error
		strings.HasSuffix(err.Error(), io.EOF.Error())
}

// Close closes the connection. The client redials on next use.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping checks the current connection without redialing.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.Ping()
}

// NowPlaying returns the current song merged with the player status.
func (c *Client) NowPlaying() (*Song, error) {
	var status, current mpd.Attrs
	err := c.do(func(conn *mpd.Client) error {
		var err error
		if status, err = conn.Status(); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if current, err = conn.CurrentSong(); err != nil {
			return fmt.Errorf("currentsong: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	song := ParseSong(current, status)
	return &song, nil
}

// ReadPicture returns the picture embedded in the file at uri.
func (c *Client) ReadPicture(uri string) (data []byte, err error) {
	err = c.do(func(conn *mpd.Client) error {
		data, err = conn.ReadPicture(uri)
		return err
	})
	return data, err
}

// AlbumArt returns the cover file MPD finds next to uri (cover.jpg, folder.png, ...).
func (c *Client) AlbumArt(uri string) (data []byte, err error) {
	err = c.do(func(conn *mpd.Client) error {
		data, err = conn.AlbumArt(uri)
		return err
	})
	return data, err
}

// Watch reports changes to subsystems on a dedicated idle connection. The
// returned channel is closed when ctx ends or the watcher shuts down.
func (c *Client) Watch(ctx context.Context, subsystems ...string) (<-chan string, error) {
	watcher, err := mpd.NewWatcher("tcp", c.addr, c.password, subsystems...)
	if err != nil {
		return nil, fmt.Errorf("watch mpd %s: %w", c.addr, err)
	}

	events := make(chan string, 10)
	go func() {
		defer close(events)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case subsystem, ok := <-watcher.Event:
				if !ok {
					return
				}
				select {
				case events <- subsystem:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("MPD watcher error")
				select {
				case <-time.After(watchRetryDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ConnectionState is a diagnostic snapshot of the serial link.
type ConnectionState struct {
	IsOpen            bool
	LastMessage       string
	ReconnectAttempts int
}

// Config holds the channel timing parameters.
type Config struct {
	// CommandTimeout bounds the wait for a matching response line.
	CommandTimeout time.Duration
	// ReconnectDelay is the fixed pause between re-open attempts.
	ReconnectDelay time.Duration
	// SettleDelay is how long to wait after opening before probing the
	// device; most firmwares reset on port open and need a moment.
	SettleDelay time.Duration
}

// Opener produces a fresh byte stream. Production uses SerialOpener; tests
// inject in-memory pipes.
type Opener func() (io.ReadWriteCloser, error)

// SerialOpener opens the named serial port at the given baud rate.
func SerialOpener(portName string, baudRate int) Opener {
	return func() (io.ReadWriteCloser, error) {
		return serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	}
}

// request is one queued command exchange.
type request struct {
	cmd    string
	prefix string
	resp   chan result
}

type result struct {
	line string
	err  error
}

// Channel turns the shared serial byte stream into correlated
// request/response exchanges. All commands flow through a single-writer FIFO
// loop, so exactly one command is in flight at a time and responses cannot be
// cross-matched between concurrent callers.
type Channel struct {
	cfg      Config
	open     Opener
	onStatus func(ConnectionState)

	mu    sync.RWMutex
	state ConnectionState
	port  io.ReadWriteCloser

	requests chan *request
	lines    chan string
	done     chan struct{}
	closeOne sync.Once
}

// NewChannel creates a channel. onStatus, if non-nil, is invoked whenever the
// connection state changes; it must not block.
func NewChannel(cfg Config, open Opener, onStatus func(ConnectionState)) *Channel {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 7 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	c := &Channel{
		cfg:      cfg,
		open:     open,
		onStatus: onStatus,
		requests: make(chan *request),
		lines:    make(chan string, 64),
		done:     make(chan struct{}),
	}
	go c.commandLoop()
	return c
}

// Open establishes the stream. On success the reader starts and a status
// probe is issued after the settle delay. On failure the error is returned
// and re-opening is retried in the background every reconnect delay.
func (c *Channel) Open() error {
	port, err := c.open()
	if err != nil {
		c.setClosed(fmt.Sprintf("open failed: %v", err))
		go c.reconnectLoop()
		return fmt.Errorf("failed to open device stream: %w", err)
	}
	c.startSession(port)
	return nil
}

// Close tears the channel down permanently.
func (c *Channel) Close() error {
	c.closeOne.Do(func() { close(c.done) })
	c.mu.Lock()
	port := c.port
	c.port = nil
	c.state.IsOpen = false
	c.mu.Unlock()
	if port != nil {
		return port.Close()
	}
	return nil
}

// ConnectionState returns a snapshot of the link state. It never blocks on I/O.
func (c *Channel) ConnectionState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SendCommand writes a line-terminated command and waits for the first
// incoming line starting with expectedPrefix. A device error line rejects
// immediately; otherwise the command window applies.
func (c *Channel) SendCommand(ctx context.Context, cmd, expectedPrefix string) (string, error) {
	if !c.ConnectionState().IsOpen {
		return "", ErrChannelNotOpen
	}

	req := &request{cmd: cmd, prefix: expectedPrefix, resp: make(chan result, 1)}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrChannelNotOpen
	}

	select {
	case res := <-req.resp:
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// commandLoop serializes all command exchanges over the shared stream.
func (c *Channel) commandLoop() {
	for {
		select {
		case <-c.done:
			return
		case req := <-c.requests:
			req.resp <- c.perform(req)
		}
	}
}

func (c *Channel) perform(req *request) result {
	c.mu.RLock()
	port := c.port
	open := c.state.IsOpen
	c.mu.RUnlock()
	if !open || port == nil {
		return result{err: ErrChannelNotOpen}
	}

	// Drop lines left over from before this command; matching them would
	// correlate a response with the wrong exchange.
	c.drainLines()

	if _, err := port.Write([]byte(req.cmd + "\n")); err != nil {
		return result{err: fmt.Errorf("failed to write command %q: %w", req.cmd, err)}
	}

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	for {
		select {
		case line := <-c.lines:
			if strings.HasPrefix(line, PrefixError) {
				return result{err: &DeviceError{Command: req.cmd, Line: line}}
			}
			if strings.HasPrefix(line, req.prefix) {
				return result{line: line}
			}
			// Unrelated traffic; keep listening until the window closes.
		case <-timer.C:
			return result{err: &CommandTimeoutError{
				Command:     req.cmd,
				LastMessage: c.ConnectionState().LastMessage,
				Window:      c.cfg.CommandTimeout,
			}}
		case <-c.done:
			return result{err: ErrChannelNotOpen}
		}
	}
}

func (c *Channel) drainLines() {
	for {
		select {
		case <-c.lines:
		default:
			return
		}
	}
}

// startSession installs a freshly opened port, starts its reader, and probes
// the device once it has settled.
func (c *Channel) startSession(port io.ReadWriteCloser) {
	c.mu.Lock()
	c.port = port
	c.state.IsOpen = true
	c.mu.Unlock()
	c.notify()

	go c.readLoop(port)
	go func() {
		if c.cfg.SettleDelay > 0 {
			select {
			case <-time.After(c.cfg.SettleDelay):
			case <-c.done:
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
		defer cancel()
		if _, err := c.RequestStatus(ctx); err != nil {
			log.Printf("device: status probe after open failed: %v", err)
		}
	}()
}

// readLoop consumes the stream line by line until it errors or closes.
func (c *Channel) readLoop(port io.ReadWriteCloser) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		c.mu.Lock()
		c.state.LastMessage = line
		c.mu.Unlock()
		select {
		case c.lines <- line:
		default:
			// Nobody is waiting and the buffer is full; the line only
			// survives as LastMessage.
		}
	}

	select {
	case <-c.done:
		return
	default:
	}

	errMsg := "stream closed"
	if err := scanner.Err(); err != nil {
		errMsg = fmt.Sprintf("stream error: %v", err)
	}
	log.Printf("device: %s, reconnecting in %s", errMsg, c.cfg.ReconnectDelay)
	port.Close()
	c.setClosed(errMsg)
	go c.reconnectLoop()
}

// reconnectLoop re-opens the stream after the fixed delay, indefinitely,
// until the channel is closed for good.
func (c *Channel) reconnectLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.mu.Lock()
		c.state.ReconnectAttempts++
		attempt := c.state.ReconnectAttempts
		c.mu.Unlock()

		port, err := c.open()
		if err != nil {
			log.Printf("device: reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		log.Printf("device: reconnected after %d attempt(s)", attempt)
		c.startSession(port)
		return
	}
}

func (c *Channel) setClosed(lastMessage string) {
	c.mu.Lock()
	c.state.IsOpen = false
	c.port = nil
	if lastMessage != "" {
		c.state.LastMessage = lastMessage
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Channel) notify() {
	if c.onStatus == nil {
		return
	}
	c.onStatus(c.ConnectionState())
}

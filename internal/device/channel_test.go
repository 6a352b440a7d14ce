package device

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is an in-memory stand-in for the serial port: the test feeds
// device lines in and observes the commands the channel writes out.
type fakePort struct {
	reader *io.PipeReader
	feeder *io.PipeWriter

	mu     sync.Mutex
	writes chan string
	closed bool
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{
		reader: r,
		feeder: w,
		writes: make(chan string, 16),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		p.writes <- line
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.feeder.Close()
		p.reader.Close()
	}
	return nil
}

// feedLine injects one device line into the stream.
func (p *fakePort) feedLine(line string) {
	go p.feeder.Write([]byte(line + "\n"))
}

func testConfig() Config {
	return Config{
		CommandTimeout: 200 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
		// Keep the automatic status probe out of the way.
		SettleDelay: time.Hour,
	}
}

func openTestChannel(t *testing.T) (*Channel, *fakePort) {
	t.Helper()
	port := newFakePort()
	c := NewChannel(testConfig(), func() (io.ReadWriteCloser, error) { return port, nil }, nil)
	require.NoError(t, c.Open())
	t.Cleanup(func() { c.Close() })
	return c, port
}

func TestSendCommandMatchesPrefixSkippingUnrelatedLines(t *testing.T) {
	c, port := openTestChannel(t)

	go func() {
		<-port.writes // the "Q" command
		port.feedLine("BOOT v1.2")
		port.feedLine("DEBUG;loop")
		port.feedLine("STATUS;0,255,0")
	}()

	line, err := c.SendCommand(context.Background(), "Q", "STATUS;")
	require.NoError(t, err)
	assert.Equal(t, "STATUS;0,255,0", line)
}

func TestSendCommandTimeoutIncludesLastMessage(t *testing.T) {
	c, port := openTestChannel(t)

	go func() {
		<-port.writes
		port.feedLine("BOOT v1.2")
	}()

	_, err := c.SendCommand(context.Background(), "Q", "STATUS;")
	var timeoutErr *CommandTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "Q", timeoutErr.Command)
	assert.Equal(t, "BOOT v1.2", timeoutErr.LastMessage)
}

func TestSendCommandRejectsOnDeviceError(t *testing.T) {
	c, port := openTestChannel(t)

	go func() {
		<-port.writes
		port.feedLine("ERR;BADCH")
	}()

	_, err := c.SendCommand(context.Background(), "N9", "OK;ON")
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "ERR;BADCH", devErr.Line)
}

func TestSendCommandWhileClosed(t *testing.T) {
	port := newFakePort()
	c := NewChannel(testConfig(), func() (io.ReadWriteCloser, error) { return port, nil }, nil)
	defer c.Close()

	_, err := c.SendCommand(context.Background(), "Q", "STATUS;")
	assert.ErrorIs(t, err, ErrChannelNotOpen)
}

func TestConcurrentCommandsAreSerialized(t *testing.T) {
	c, port := openTestChannel(t)

	// Answer each command as it arrives; because the channel is a
	// single-writer queue, responses cannot cross between callers.
	go func() {
		for cmd := range port.writes {
			switch {
			case strings.HasPrefix(cmd, "N"):
				port.feedLine("OK;ON")
			case strings.HasPrefix(cmd, "F"):
				port.feedLine("OK;OFF")
			}
			// Give the command loop time to consume the response
			// before the next one is fed.
			time.Sleep(10 * time.Millisecond)
		}
	}()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				errs[i] = c.TurnOn(context.Background(), i)
			} else {
				errs[i] = c.TurnOff(context.Background(), i)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "command %d", i)
	}
}

func TestReconnectAfterStreamLoss(t *testing.T) {
	var opens atomic.Int32
	var mu sync.Mutex
	ports := []*fakePort{newFakePort(), newFakePort()}

	opener := func() (io.ReadWriteCloser, error) {
		n := opens.Add(1)
		if int(n) > len(ports) {
			return nil, errors.New("no more ports")
		}
		mu.Lock()
		defer mu.Unlock()
		return ports[n-1], nil
	}

	var notifications []ConnectionState
	var notifyMu sync.Mutex
	c := NewChannel(testConfig(), opener, func(s ConnectionState) {
		notifyMu.Lock()
		notifications = append(notifications, s)
		notifyMu.Unlock()
	})
	defer c.Close()

	require.NoError(t, c.Open())
	assert.True(t, c.ConnectionState().IsOpen)

	// Drop the stream; the channel must notice and re-open on the second
	// port after the reconnect delay.
	ports[0].Close()

	require.Eventually(t, func() bool {
		return c.ConnectionState().IsOpen && opens.Load() == 2
	}, time.Second, 10*time.Millisecond)

	state := c.ConnectionState()
	assert.Equal(t, 1, state.ReconnectAttempts)

	notifyMu.Lock()
	defer notifyMu.Unlock()
	// open -> closed -> open again
	require.GreaterOrEqual(t, len(notifications), 3)
	assert.False(t, notifications[1].IsOpen)
}

func TestConnectionStateNeverBlocks(t *testing.T) {
	c, _ := openTestChannel(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.ConnectionState()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConnectionState blocked")
	}
}

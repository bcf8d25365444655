package sensorlink

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/navfusion/internal/monitoring"
)

// ErrWriteFailed is returned when a command is only partly written.
var ErrWriteFailed = errors.New("failed to write to serial port")

// LinkInterface is the behaviour shared by Link and DisabledLink.
type LinkInterface interface {
	// Subscribe creates a new channel receiving every line read from the
	// port. The ID identifies the channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// SendCommand writes one command line to the port.
	SendCommand(string) error
	// Monitor reads lines until the context ends or the port fails.
	Monitor(context.Context) error
	// Stats returns line counters.
	Stats() LinkStats
	// Close closes all subscriber channels and the port.
	Close() error
}

// LinkStats counts the lines a transport has seen.
type LinkStats struct {
	Lines  uint64 `json:"lines"`
	Errors uint64 `json:"errors"`
}

// Link multiplexes one serial port. Every line is passed to the handler, if
// any, and then offered to subscribers without blocking.
type Link[T Porter] struct {
	port    T
	handler LineHandler

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool

	lines    atomic.Uint64
	errs     atomic.Uint64
	errorLog *monitoring.Limiter
}

var _ LinkInterface = (*Link[Porter])(nil)

// NewLink wraps port.
func NewLink[T Porter](port T) *Link[T] {
	return &Link[T]{
		port:        port,
		subscribers: make(map[string]chan string),
		errorLog:    monitoring.NewLimiter(100),
	}
}

// SetHandler installs the line handler. It must be called before Monitor.
func (l *Link[T]) SetHandler(h LineHandler) { l.handler = h }

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)
}

func (l *Link[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	l.subscribers[id] = ch
	return id, ch
}

func (l *Link[T]) Unsubscribe(id string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

// SendCommand writes command to the port, appending a newline if needed.
func (l *Link[T]) SendCommand(command string) error {
	l.commandMu.Lock()
	defer l.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := l.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port until ctx is cancelled, the port
// reaches EOF, or a read fails.
func (l *Link[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(l.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking Scan runs in its own goroutine so cancellation is
	// observed between lines
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if l.closing.Load() {
				return nil
			}
			l.dispatch(line)
		}
	}
}

func (l *Link[T]) dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	l.lines.Add(1)

	if l.handler != nil {
		if err := l.handler(line); err != nil {
			l.errs.Add(1)
			if l.errorLog.Allow() {
				monitoring.Logf("[sensorlink] dropping line %q: %v (%d errors)", line, err, l.errs.Load())
			}
		}
	}

	l.subscriberMu.Lock()
	for _, ch := range l.subscribers {
		select {
		case ch <- line:
		default:
			// slow subscribers miss lines rather than stall the port
		}
	}
	l.subscriberMu.Unlock()
}

// Stats returns the line counters.
func (l *Link[T]) Stats() LinkStats {
	return LinkStats{Lines: l.lines.Load(), Errors: l.errs.Load()}
}

func (l *Link[T]) Close() error {
	l.closing.Store(true)

	l.subscriberMu.Lock()
	for id, ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, id)
	}
	l.subscriberMu.Unlock()
	return l.port.Close()
}

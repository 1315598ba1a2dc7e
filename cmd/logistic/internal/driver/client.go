package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/core"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/logger"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/session"
)

const maxDelay = 5000 // milliseconds

// Client drives one connection as a feedback loop: every reply becomes the
// next request.
type Client struct {
	Resolver core.BackendResolver
	Metadata core.RoutingMetadata
	ID       uint64
	Initial  float64
	Messages int
	// Delay enables a pause derived from the received value between exchanges.
	Delay    bool
}

// Run performs the exchanges and returns the values received, in order.
// The values collected before a failure are returned together with the error.
func (c *Client) Run(ctx context.Context) ([]float64, error) {
	log := logger.With("client_id", c.ID)

	addr, err := c.Resolver.Resolve(ctx, c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("client %d: failed to resolve server: %w", c.ID, err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client %d: failed to connect to %s: %w", c.ID, addr, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn("Failed to close connection", "error", err)
		}
	}()

	// Unblock pending I/O when the context is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	received := make([]float64, 0, c.Messages)
	current := c.Initial

	for msg := 1; msg <= c.Messages; msg++ {
		if _, err := writer.WriteString(session.FormatValue(current) + "\n"); err != nil {
			return received, fmt.Errorf("client %d: failed to send message %d: %w", c.ID, msg, err)
		}
		if err := writer.Flush(); err != nil {
			return received, fmt.Errorf("client %d: failed to flush message %d: %w", c.ID, msg, err)
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return received, fmt.Errorf("client %d: server closed connection before reply %d: %w", c.ID, msg, err)
			}
			if ctx.Err() != nil {
				return received, ctx.Err()
			}
			return received, fmt.Errorf("client %d: failed to read reply %d: %w", c.ID, msg, err)
		}

		current, err = parseWire(line)
		if err != nil {
			return received, fmt.Errorf("client %d: failed to parse reply %d: %w", c.ID, msg, err)
		}
		received = append(received, current)
		log.Info("Received reply", "value", session.FormatValue(current), "message", msg)

		if c.Delay {
			if err := sleep(ctx, delayFor(current)); err != nil {
				return received, err
			}
		}
	}

	return received, nil
}

func parseWire(line string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(line), 64)
}

// delayFor derives the pause after receiving x: x*1000 milliseconds, wrapped
// at five seconds.
func delayFor(x float64) time.Duration {
	if x <= 0 {
		return 0
	}
	return time.Duration(uint64(x*1000)%maxDelay) * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fleet configures a group of clients started together.
type Fleet struct {
	Resolver core.BackendResolver
	Metadata core.RoutingMetadata
	IDs      *core.ClientIDs
	Clients  int
	Messages int
	Initial  float64
	Step     float64
	Delay    bool
}

// Result is the outcome of one fleet client.
type Result struct {
	ID         uint64
	Initial    float64
	Trajectory []float64
	Err        error
}

// RunAll starts every client concurrently, client i beginning at
// Initial + i*Step, and waits for all of them.
func (f *Fleet) RunAll(ctx context.Context) []Result {
	results := make([]Result, f.Clients)

	var wg sync.WaitGroup
	for i := 0; i < f.Clients; i++ {
		client := &Client{
			Resolver: f.Resolver,
			Metadata: f.Metadata,
			ID:       f.IDs.Next(),
			Initial:  f.Initial + float64(i)*f.Step,
			Messages: f.Messages,
			Delay:    f.Delay,
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trajectory, err := client.Run(ctx)
			if err != nil {
				logger.Error("Client failed", "client_id", client.ID, "error", err)
			}
			results[i] = Result{
				ID:         client.ID,
				Initial:    client.Initial,
				Trajectory: trajectory,
				Err:        err,
			}
		}(i)
	}
	wg.Wait()

	return results
}

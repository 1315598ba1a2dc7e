package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/logger"
)

const replyPrecision = 12

var (
	errInvalidUTF8 = errors.New("invalid UTF-8")
	errNotFinite   = errors.New("value is not finite")
	errNotDecimal  = errors.New("not a decimal number")
)

// TransformFunc maps one request value to one reply value.
type TransformFunc func(float64) float64

// Handler serves the line protocol on one connection: each line carries a
// decimal number, each valid number gets exactly one reply line.
type Handler struct {
	Transform TransformFunc
}

// NewHandler creates a session handler applying fn to every valid request.
func NewHandler(fn TransformFunc) *Handler {
	return &Handler{Transform: fn}
}

type sessionStats struct {
	lines   int
	replies int
	dropped int
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *Handler) HandleConnection(conn net.Conn, clientID uint64) {
	log := logger.With("client_id", clientID, "remote_addr", conn.RemoteAddr())
	stats := &sessionStats{}

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("Failed to close connection", "error", err)
		}
		log.Debug("Session closed", "lines", stats.lines, "replies", stats.replies, "dropped", stats.dropped)
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			log.Error("Failed to read from client", "error", readErr)
			return
		}
		if len(line) == 0 {
			// Orderly shutdown by the peer
			return
		}

		stats.lines++
		value, err := parseRequest(line)
		if err != nil {
			stats.dropped++
			log.Warn("Dropping malformed request", "error", err)
		} else if err := writeReply(writer, h.Transform(value)); err != nil {
			log.Error("Failed to write reply", "error", err)
			return
		} else {
			stats.replies++
		}

		// An unterminated fragment arrives together with EOF
		if readErr != nil {
			return
		}
	}
}

func parseRequest(line []byte) (float64, error) {
	if !utf8.Valid(line) {
		return 0, errInvalidUTF8
	}

	text := strings.TrimSpace(string(line))
	if !isDecimal(text) {
		return 0, fmt.Errorf("error parsing number %q: %w", text, errNotDecimal)
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing number %q: %w", text, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("error parsing number %q: %w", text, errNotFinite)
	}
	return value, nil
}

// isDecimal rejects the Go-only float syntax ParseFloat accepts: digit
// separators and hexadecimal mantissas.
func isDecimal(text string) bool {
	if strings.Contains(text, "_") {
		return false
	}
	digits := strings.TrimLeft(text, "+-")
	return !strings.HasPrefix(digits, "0x") && !strings.HasPrefix(digits, "0X")
}

func writeReply(w *bufio.Writer, value float64) error {
	if _, err := w.WriteString(FormatValue(value) + "\n"); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush reply: %w", err)
	}
	return nil
}

// FormatValue renders v the way it travels on the wire: fixed point with
// twelve decimals, no terminator. An overflowed result is "inf" or "-inf".
func FormatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', replyPrecision, 64)
}

package session

import (
	"bufio"
	"errors"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/transform"
)

// startSession accepts exactly one connection on a loopback listener and
// serves it with the logistic handler. The returned channel closes when the
// handler returns.
func startSession(t *testing.T) (*net.TCPConn, <-chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		NewHandler(transform.Logistic).HandleConnection(conn, 1)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn.(*net.TCPConn), done
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session handler did not return")
	}
}

func TestHandleConnectionReplies(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "midpoint", input: "0.5\n", want: "1.000000000000\n"},
		{name: "point two", input: "0.2\n", want: "0.640000000000\n"},
		{name: "surrounding whitespace", input: "  0.3 \r\n", want: "0.840000000000\n"},
		{name: "zero", input: "0\n", want: "0.000000000000\n"},
		{name: "outside unit interval", input: "2\n", want: "-8.000000000000\n"},
		{name: "overflowing result", input: "1e200\n", want: "-inf\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, done := startSession(t)
			r := bufio.NewReader(conn)

			_, err := conn.Write([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, readLine(t, r))

			require.NoError(t, conn.CloseWrite())
			waitDone(t, done)
		})
	}
}

func TestHandleConnectionReplyWithinTolerance(t *testing.T) {
	conn, done := startSession(t)
	r := bufio.NewReader(conn)

	for _, x := range []float64{0.1, 0.123456789, 0.7, 0.999, 0.25} {
		_, err := conn.Write([]byte(strconv.FormatFloat(x, 'g', -1, 64) + "\n"))
		require.NoError(t, err)

		reply := readLine(t, r)
		parts := strings.SplitN(strings.TrimSpace(reply), ".", 2)
		require.Len(t, parts, 2)
		assert.Len(t, parts[1], 12, "reply %q must carry twelve decimals", reply)

		got, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
		require.NoError(t, err)
		assert.InDelta(t, 4*x*(1-x), got, 1e-9)
	}

	require.NoError(t, conn.CloseWrite())
	waitDone(t, done)
}

func TestHandleConnectionSkipsMalformedLines(t *testing.T) {
	conn, done := startSession(t)
	r := bufio.NewReader(conn)

	_, err := conn.Write([]byte("abc\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("\xff\xfe\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("NaN\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("0.3\n"))
	require.NoError(t, err)

	// The first reply belongs to 0.3; nothing was sent for the bad lines
	assert.Equal(t, "0.840000000000\n", readLine(t, r))

	require.NoError(t, conn.CloseWrite())
	_, err = r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
	waitDone(t, done)
}

func TestHandleConnectionReplyCountMatchesValidLines(t *testing.T) {
	conn, done := startSession(t)

	input := "0.1\nfoo\n0.2\n1e\n0x1p-2\n0.4\n1_0\n\n0.6\n"
	_, err := conn.Write([]byte(input))
	require.NoError(t, err)
	require.NoError(t, conn.CloseWrite())

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0.360000000000",
		"0.640000000000",
		"0.960000000000",
		"0.960000000000",
	}, strings.Fields(string(data)))
	waitDone(t, done)
}

func TestHandleConnectionExitsOnEOF(t *testing.T) {
	conn, done := startSession(t)

	require.NoError(t, conn.CloseWrite())
	waitDone(t, done)

	// The server closed its side as well
	_, err := bufio.NewReader(conn).ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHandleConnectionProcessesTrailingFragment(t *testing.T) {
	conn, done := startSession(t)

	_, err := conn.Write([]byte("0.2"))
	require.NoError(t, err)
	require.NoError(t, conn.CloseWrite())

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "0.640000000000\n", string(data))
	waitDone(t, done)
}

// scriptedConn feeds a fixed input and fails every write.
type scriptedConn struct {
	net.Conn
	in     io.Reader
	writes atomic.Int32
	closed atomic.Bool
}

func (c *scriptedConn) Read(p []byte) (int, error) { return c.in.Read(p) }

func (c *scriptedConn) Write(p []byte) (int, error) {
	c.writes.Add(1)
	return 0, errors.New("broken pipe")
}

func (c *scriptedConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *scriptedConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
}

func TestHandleConnectionStopsOnWriteFailure(t *testing.T) {
	conn := &scriptedConn{in: strings.NewReader("0.1\n0.2\n0.3\n")}

	NewHandler(transform.Logistic).HandleConnection(conn, 42)

	assert.EqualValues(t, 1, conn.writes.Load(), "no further requests after a failed write")
	assert.True(t, conn.closed.Load())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestHandleConnectionStopsOnReadFailure(t *testing.T) {
	conn := &scriptedConn{in: failingReader{}}

	NewHandler(transform.Logistic).HandleConnection(conn, 43)

	assert.Zero(t, conn.writes.Load())
	assert.True(t, conn.closed.Load())
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line    string
		want    float64
		wantErr bool
	}{
		{line: "0.5\n", want: 0.5},
		{line: "\t-1.25e-3 \n", want: -0.00125},
		{line: "1", want: 1},
		{line: "abc\n", wantErr: true},
		{line: "\n", wantErr: true},
		{line: "+Inf\n", wantErr: true},
		{line: "1e400\n", wantErr: true},
		{line: "\xc3\x28\n", wantErr: true},
		{line: "0x1p-2\n", wantErr: true},
		{line: "-0X1p-2\n", wantErr: true},
		{line: "0x_1p-2\n", wantErr: true},
		{line: "1_0\n", wantErr: true},
		{line: "+0.25\n", want: 0.25},
		{line: ".5\n", want: 0.5},
	}

	for _, tt := range tests {
		t.Run(strconv.Quote(tt.line), func(t *testing.T) {
			got, err := parseRequest([]byte(tt.line))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1.000000000000", FormatValue(1))
	assert.Equal(t, "0.640000000000", FormatValue(0.6400000000000001))
	assert.Equal(t, "0.123456789012", FormatValue(0.1234567890123))
	assert.Equal(t, "inf", FormatValue(math.Inf(1)))
	assert.Equal(t, "-inf", FormatValue(math.Inf(-1)))
}

package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// udpSink binds a local UDP socket and collects every received packet.
type udpSink struct {
	conn  net.PacketConn
	lines chan string
}

func newUDPSink(t *testing.T) *udpSink {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &udpSink{conn: conn, lines: make(chan string, 16)}
	go func() {
		buf := make([]byte, 1024)
		for {
			n, _, readErr := conn.ReadFrom(buf)
			if readErr != nil {
				return
			}
			s.lines <- string(buf[:n])
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return s
}

func (s *udpSink) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-s.lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("no statsd packet received")
		return ""
	}
}

func TestClientEmitsMetrics(t *testing.T) {
	sink := newUDPSink(t)
	c, err := NewClient(Config{
		Enabled: true,
		Address: sink.conn.LocalAddr().String(),
		Prefix:  "automation",
	})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.True(t, c.Enabled())

	c.Count("jobs.started", 1, map[string]string{"service": "damco_tracking_maersk"})
	assert.Equal(t, "automation.jobs.started:1|c|#service:damco_tracking_maersk", sink.next(t))

	c.Gauge("jobs.running", 3, nil)
	assert.Equal(t, "automation.jobs.running:3|g", sink.next(t))

	c.Timing("jobs.duration", 1500*time.Millisecond, nil)
	assert.Equal(t, "automation.jobs.duration:1500|ms", sink.next(t))
}

func TestClientSortsTags(t *testing.T) {
	sink := newUDPSink(t)
	c, err := NewClient(Config{Enabled: true, Address: sink.conn.LocalAddr().String()})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Count("jobs.failed", 2, map[string]string{"zone": "b", "service": "a"})
	assert.Equal(t, "jobs.failed:2|c|#service:a,zone:b", sink.next(t))
}

func TestClientSanitizesMetricNames(t *testing.T) {
	sink := newUDPSink(t)
	c, err := NewClient(Config{Enabled: true, Address: sink.conn.LocalAddr().String(), Prefix: ".automation."})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Count(" jobs/total count ", 1, nil)
	assert.Equal(t, "automation.jobs_total_count:1|c", sink.next(t))
}

func TestDisabledClientDropsMetrics(t *testing.T) {
	c, err := NewClient(Config{Enabled: false, Address: "localhost:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	// Safe no-ops, including on a nil client.
	c.Count("jobs.started", 1, nil)
	c.Gauge("jobs.running", 1, nil)
	c.Timing("jobs.duration", time.Second, nil)
	require.NoError(t, c.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	nilClient.Count("jobs.started", 1, nil)
	require.NoError(t, nilClient.Close())
}

func TestClientEnabledRequiresAddress(t *testing.T) {
	c, err := NewClient(Config{Enabled: true, Address: "  "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
}

func TestCloseDisablesClient(t *testing.T) {
	sink := newUDPSink(t)
	c, err := NewClient(Config{Enabled: true, Address: sink.conn.LocalAddr().String()})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	c.Count("jobs.started", 1, nil) // dropped, must not panic

	select {
	case line := <-sink.lines:
		t.Fatalf("unexpected packet after close: %s", line)
	case <-time.After(50 * time.Millisecond):
	}
}

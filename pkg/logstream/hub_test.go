package logstream

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/psantana5/crashloop/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastToSubscribers(t *testing.T) {
	h := NewHub(4)
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubA()
	defer unsubB()
	assert.Equal(t, 2, h.Subscribers())

	h.Broadcast("hello")
	assert.Equal(t, "hello", <-a)
	assert.Equal(t, "hello", <-b)
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Broadcast("first")
	h.Broadcast("second")

	assert.Equal(t, "first", <-ch)
	assert.Equal(t, uint64(1), h.Dropped())
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %q", msg)
	default:
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe()
	unsub()
	unsub()

	assert.Equal(t, 0, h.Subscribers())
	_, open := <-ch
	assert.False(t, open)
	h.Broadcast("nobody listens")
}

func TestHub_Close(t *testing.T) {
	h := NewHub(2)
	ch, unsub := h.Subscribe()

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers())

	assert.NotPanics(t, unsub)
}

func TestFrame(t *testing.T) {
	assert.Equal(t, "data: {\"message\":\"say \\\"hi\\\"\"}\n\n", Frame(`say "hi"`))
}

func TestHub_Sink(t *testing.T) {
	h := NewHub(4)
	ch, unsub := h.Subscribe()
	defer unsub()

	logger := logging.NewLogger(logging.DEBUG, false)
	logger.SetOutput(&bytes.Buffer{})
	logger.AddSink(h.Sink(logging.INFO))

	logger.Debug("noise")
	logger.Info("Function crashed", map[string]interface{}{"attempt": 2})

	assert.Equal(t, "Function crashed attempt=2", <-ch)
	select {
	case msg := <-ch:
		t.Fatalf("debug entry leaked: %q", msg)
	default:
	}
}

func TestHub_ServeHTTP(t *testing.T) {
	h := NewHub(8)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var b strings.Builder
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			b.WriteString(line)
			if line == "\n" {
				return b.String()
			}
		}
	}

	assert.Equal(t, ConnectedFrame, readFrame())

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	h.Broadcast("Restarting after 5s...")
	assert.Equal(t, "data: {\"message\":\"Restarting after 5s...\"}\n\n", readFrame())
}

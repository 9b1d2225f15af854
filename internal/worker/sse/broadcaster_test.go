package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/orion/pkg/models"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// mockResponseWriter implements http.ResponseWriter and http.Flusher for testing.
type mockResponseWriter struct {
	header   http.Header
	body     []byte
	mu       sync.Mutex
	writeErr error
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{header: make(http.Header)}
}

func (m *mockResponseWriter) Header() http.Header {
	return m.header
}

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *mockResponseWriter) WriteHeader(int) {}

func (m *mockResponseWriter) Flush() {}

func (m *mockResponseWriter) Body() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

// plainWriter does not support flushing.
type plainWriter struct{ http.ResponseWriter }

func (s *BroadcasterSuite) TestAddRemoveClient() {
	w := newMockResponseWriter()
	client, err := s.broadcaster.AddClient(w, "p1")
	s.Require().NoError(err)
	s.NotEmpty(client.ID)
	s.Equal("p1", client.ProjectID)
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.RemoveClient(client)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-client.Done:
	default:
		s.Fail("Done channel should be closed")
	}

	// Second removal must not panic on the closed channel.
	s.NotPanics(func() { s.broadcaster.RemoveClient(client) })
}

func (s *BroadcasterSuite) TestAddClient_RequiresFlusher() {
	_, err := s.broadcaster.AddClient(plainWriter{}, "")
	s.Error(err)
}

func (s *BroadcasterSuite) TestUniqueIDs() {
	ids := make(map[string]bool)
	for i := 0; i < 10; i++ {
		c, err := s.broadcaster.AddClient(newMockResponseWriter(), "")
		s.Require().NoError(err)
		s.False(ids[c.ID])
		ids[c.ID] = true
	}
}

func (s *BroadcasterSuite) TestJobUpdated_ProjectFiltering() {
	p1 := newMockResponseWriter()
	p2 := newMockResponseWriter()
	all := newMockResponseWriter()
	_, err := s.broadcaster.AddClient(p1, "p1")
	s.Require().NoError(err)
	_, err = s.broadcaster.AddClient(p2, "p2")
	s.Require().NoError(err)
	_, err = s.broadcaster.AddClient(all, "")
	s.Require().NoError(err)

	s.broadcaster.JobUpdated(&models.Job{ID: "job-1", ProjectID: "p1", Status: models.JobStatusRunning, Progress: 40})

	s.Contains(p1.Body(), "event: job\n")
	s.Contains(p1.Body(), `"id":"job-1"`)
	s.Contains(p1.Body(), `"progress":40`)
	s.Empty(p2.Body())
	s.Contains(all.Body(), `"job-1"`)
}

func (s *BroadcasterSuite) TestJobUpdated_Nil() {
	w := newMockResponseWriter()
	_, err := s.broadcaster.AddClient(w, "")
	s.Require().NoError(err)
	s.broadcaster.JobUpdated(nil)
	s.Empty(w.Body())
}

func (s *BroadcasterSuite) TestBroadcast_NoClients() {
	s.NotPanics(func() { s.broadcaster.Broadcast(Event{Type: EventJob}) })
}

func (s *BroadcasterSuite) TestBroadcast_DropsFailingClient() {
	bad := newMockResponseWriter()
	bad.writeErr = errors.New("broken pipe")
	good := newMockResponseWriter()
	_, err := s.broadcaster.AddClient(bad, "")
	s.Require().NoError(err)
	_, err = s.broadcaster.AddClient(good, "")
	s.Require().NoError(err)

	s.broadcaster.Broadcast(Event{Type: EventJob, ProjectID: "p1"})
	s.Equal(1, s.broadcaster.ClientCount())
	s.Contains(good.Body(), "event: job")
}

func TestHandleSSE(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events?project=p1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.HandleSSE(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, b.ClientCount())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "event: connected\n"))
}

func TestConcurrentBroadcast(t *testing.T) {
	b := NewBroadcaster()
	writers := make([]*mockResponseWriter, 5)
	for i := range writers {
		writers[i] = newMockResponseWriter()
		_, err := b.AddClient(writers[i], "p1")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.JobUpdated(&models.Job{ID: "j", ProjectID: "p1"})
		}()
	}
	wg.Wait()

	for _, w := range writers {
		assert.Equal(t, 20, strings.Count(w.Body(), "event: job\n"))
	}
}

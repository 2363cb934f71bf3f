// internal/session/session_test.go

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sshmux/internal/logging"
	"sshmux/internal/models"
	"sshmux/internal/surface"
	"sshmux/internal/transport"
)

// fakeChannel symuluje kanał transportowy w pamięci
type fakeChannel struct {
	mu   sync.Mutex
	sent []transport.Message

	incoming  chan transport.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan transport.Message, 64),
		done:     make(chan struct{}),
	}
}

func (f *fakeChannel) Open(ctx context.Context) error { return nil }

func (f *fakeChannel) Send(msg transport.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if msg.Type == transport.MsgPing {
		select {
		case f.incoming <- transport.Message{Type: transport.MsgPong}:
		case <-f.done:
		}
	}
	return nil
}

func (f *fakeChannel) Receive() (transport.Message, error) {
	select {
	case msg := <-f.incoming:
		return msg, nil
	case <-f.done:
		return transport.Message{}, errors.New("fake channel closed")
	}
}

func (f *fakeChannel) LineTerminator() string { return "\r" }

func (f *fakeChannel) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeChannel) sentOfType(t transport.MessageType) []transport.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Message
	for _, msg := range f.sent {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

type fakeRenderer struct {
	mu           sync.Mutex
	written      []byte
	panicDispose bool
	disposed     bool
}

func (r *fakeRenderer) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = append(r.written, p...)
}
func (r *fakeRenderer) SetSize(cols, rows int) {}
func (r *fakeRenderer) Render() string         { return "" }
func (r *fakeRenderer) Dispose() {
	r.disposed = true
	if r.panicDispose {
		panic("renderer dispose failed")
	}
}

type fakeClipboard struct {
	content string
	readErr error
	written string
}

func (c *fakeClipboard) ReadAll() (string, error) { return c.content, c.readErr }
func (c *fakeClipboard) WriteAll(text string) error {
	c.written = text
	return nil
}

func testHost(secret string) models.Host {
	return models.Host{
		DisplayName: "db-01",
		Login:       "admin",
		IP:          "10.0.0.2",
		Port:        "22",
		AuthMethod:  models.AuthPassword,
		Secret:      secret,
	}
}

type fixture struct {
	sess   *Session
	fake   *fakeChannel
	rend   *fakeRenderer
	clip   *fakeClipboard
	reg    *transport.Registry
	events chan transport.Event
	dials  *int32
}

func newFixture(t *testing.T, host models.Host) *fixture {
	t.Helper()
	fake := newFakeChannel()
	var dials int32
	reg := transport.NewRegistry()
	conn := transport.NewConn(host, func(models.Host) transport.Channel {
		atomic.AddInt32(&dials, 1)
		return fake
	}, reg, logging.Discard())
	conn.SetTimings(transport.Timings{
		HeartbeatInterval: 10 * time.Millisecond,
		StaleAfter:        time.Second,
		ResizeDebounce:    10 * time.Millisecond,
		DialTimeout:       time.Second,
		RetryBaseDelay:    5 * time.Millisecond,
		RetryMaxDelay:     20 * time.Millisecond,
		MaxRetries:        2,
	})

	rend := &fakeRenderer{}
	surf := surface.NewAdapter(rend)
	surf.Attach(surface.FontMetrics{CellWidth: 8, CellHeight: 16})
	clip := &fakeClipboard{}
	events := make(chan transport.Event, 64)

	sess := New(7, host.TitleBase(), host, conn, surf, clip, logging.Discard(), func(ev transport.Event) {
		events <- ev
	})
	return &fixture{sess: sess, fake: fake, rend: rend, clip: clip, reg: reg, events: events, dials: &dials}
}

func (f *fixture) waitEvent(t *testing.T, want transport.EventType) transport.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-f.events:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func (f *fixture) waitStreaming(t *testing.T) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-f.events:
			if ev.Type == transport.EventState && ev.State == transport.StateStreaming {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for streaming state")
		}
	}
}

func TestOpenWithoutCredentialsSkipsTransport(t *testing.T) {
	f := newFixture(t, testHost(""))
	defer f.sess.Close()

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitEvent(t, transport.EventNeedCredentials)

	if got := atomic.LoadInt32(f.dials); got != 0 {
		t.Fatalf("no transport attempt allowed without credentials, got %d dials", got)
	}

	// Uzupełnienie danych otwiera połączenie
	f.sess.SubmitCredentials("s3cret", "")
	f.waitStreaming(t)
	if got := atomic.LoadInt32(f.dials); got != 1 {
		t.Errorf("expected 1 dial after credentials, got %d", got)
	}
}

func TestInputBufferedUntilStreaming(t *testing.T) {
	f := newFixture(t, testHost("s3cret"))
	defer f.sess.Close()

	// Wejście przed otwarciem trafia do bufora, nie ginie
	f.sess.SendLocalInput([]byte("uptime"))

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitStreaming(t)

	deadline := time.After(time.Second)
	for {
		data := f.fake.sentOfType(transport.MsgData)
		if len(data) > 0 {
			if string(data[0].Data) != "uptime" {
				t.Fatalf("expected buffered input flushed first, got %q", data[0].Data)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("buffered input never flushed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRemoteDataReachesSurface(t *testing.T) {
	f := newFixture(t, testHost("s3cret"))
	defer f.sess.Close()

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitStreaming(t)

	f.fake.incoming <- transport.Message{Type: transport.MsgData, Data: []byte("$ ")}
	f.waitEvent(t, transport.EventData)

	f.rend.mu.Lock()
	defer f.rend.mu.Unlock()
	if string(f.rend.written) != "$ " {
		t.Fatalf("expected remote data on surface, got %q", f.rend.written)
	}
}

func TestPasteNormalizesLineEndings(t *testing.T) {
	f := newFixture(t, testHost("s3cret"))
	defer f.sess.Close()

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitStreaming(t)

	f.clip.content = "line1\r\nline2\rline3\n"
	if err := f.sess.Paste(); err != nil {
		t.Fatalf("Paste() failed: %v", err)
	}

	data := f.fake.sentOfType(transport.MsgData)
	if len(data) != 1 {
		t.Fatalf("expected 1 data message, got %d", len(data))
	}
	want := "line1\rline2\rline3\r"
	if got := string(data[0].Data); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestPasteClipboardErrorIsNonFatal(t *testing.T) {
	f := newFixture(t, testHost("s3cret"))
	defer f.sess.Close()

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitStreaming(t)

	f.clip.readErr = errors.New("clipboard unavailable")
	if err := f.sess.Paste(); err != nil {
		t.Fatalf("clipboard failure must not fail the session, got %v", err)
	}
	if f.sess.State() != transport.StateStreaming {
		t.Error("session must keep streaming after clipboard failure")
	}
}

func TestCloseSurvivesSurfacePanic(t *testing.T) {
	f := newFixture(t, testHost("s3cret"))
	f.rend.panicDispose = true

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitStreaming(t)
	if f.reg.Len() != 1 {
		t.Fatalf("expected 1 registry entry, got %d", f.reg.Len())
	}

	err := f.sess.Close()
	if err == nil || !strings.Contains(err.Error(), "dispose surface panicked") {
		t.Fatalf("expected surface panic reported, got %v", err)
	}

	// Mimo paniki powierzchni transport jest rozłączony i zwolniony
	if state := f.sess.State(); state != transport.StateClosed {
		t.Errorf("expected closed state, got %s", state)
	}
	if f.reg.Len() != 0 {
		t.Errorf("registry entry must be released, got %d", f.reg.Len())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, testHost("s3cret"))

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitStreaming(t)

	if err := f.sess.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := f.sess.Close(); err != nil {
		t.Fatalf("second Close() must be a no-op, got %v", err)
	}
}

func TestNormalizePaste(t *testing.T) {
	cases := []struct {
		name       string
		in         string
		terminator string
		want       string
	}{
		{"crlf to cr", "a\r\nb", "\r", "a\rb"},
		{"lone cr to terminator", "a\rb", "\r", "a\rb"},
		{"lf passthrough", "a\nb", "\n", "a\nb"},
		{"mixed endings", "a\r\nb\rc\nd", "\r", "a\rb\rc\rd"},
		{"no endings", "plain", "\r", "plain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePaste(tc.in, tc.terminator); got != tc.want {
				t.Errorf("NormalizePaste(%q, %q) = %q, want %q", tc.in, tc.terminator, got, tc.want)
			}
		})
	}
}

func TestTransferRequiresSSHChannel(t *testing.T) {
	f := newFixture(t, testHost("s3cret"))
	defer f.sess.Close()

	if _, err := f.sess.Transfer(); err == nil {
		t.Fatal("expected error before the connection is open")
	}

	if err := f.sess.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	f.waitStreaming(t)

	// Kanał w pamięci nie jest kanałem SSH - transfer niedostępny
	if _, err := f.sess.Transfer(); err == nil || !strings.Contains(err.Error(), "ssh channel") {
		t.Fatalf("expected ssh channel requirement, got %v", err)
	}
}

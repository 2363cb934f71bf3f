// internal/surface/surface_test.go

package surface

import (
	"strings"
	"testing"
)

// recordingRenderer zapisuje wywołania do asercji
type recordingRenderer struct {
	writes   [][]byte
	sizes    [][2]int
	disposed int
}

func (r *recordingRenderer) Write(p []byte)        { r.writes = append(r.writes, p) }
func (r *recordingRenderer) SetSize(cols, rows int) { r.sizes = append(r.sizes, [2]int{cols, rows}) }
func (r *recordingRenderer) Render() string        { return "view" }
func (r *recordingRenderer) Dispose()              { r.disposed++ }

func newTestAdapter() (*Adapter, *recordingRenderer) {
	rec := &recordingRenderer{}
	a := NewAdapter(rec)
	a.Attach(FontMetrics{CellWidth: 8, CellHeight: 16})
	return a, rec
}

func TestResizeToFitComputesGrid(t *testing.T) {
	a, _ := newTestAdapter()

	cols, rows := a.ResizeToFit(800, 480)
	if cols != 100 || rows != 30 {
		t.Fatalf("expected 100x30, got %dx%d", cols, rows)
	}
	if c, r := a.Size(); c != 100 || r != 30 {
		t.Errorf("Size() should report new grid, got %dx%d", c, r)
	}
}

func TestResizeToFitClampsToMinimum(t *testing.T) {
	a, _ := newTestAdapter()

	cols, rows := a.ResizeToFit(16, 16)
	if cols != MinCols || rows != MinRows {
		t.Fatalf("tiny pane must clamp to %dx%d, got %dx%d", MinCols, MinRows, cols, rows)
	}
}

func TestResizeToFitZeroAreaIsNoOp(t *testing.T) {
	a, rec := newTestAdapter()
	a.ResizeToFit(800, 480)
	before := len(rec.sizes)

	cols, rows := a.ResizeToFit(0, 480)
	if cols != 100 || rows != 30 {
		t.Fatalf("zero area must return previous size, got %dx%d", cols, rows)
	}
	cols, rows = a.ResizeToFit(800, -10)
	if cols != 100 || rows != 30 {
		t.Fatalf("negative area must return previous size, got %dx%d", cols, rows)
	}
	if len(rec.sizes) != before {
		t.Errorf("zero area must not touch the renderer, got %d extra SetSize calls", len(rec.sizes)-before)
	}
}

func TestResizeToFitWithoutMetricsIsNoOp(t *testing.T) {
	rec := &recordingRenderer{}
	a := NewAdapter(rec)

	cols, rows := a.ResizeToFit(800, 480)
	if cols != 80 || rows != 24 {
		t.Fatalf("missing metrics must keep default grid, got %dx%d", cols, rows)
	}
}

func TestResizeToFitSameSizeSkipsRenderer(t *testing.T) {
	a, rec := newTestAdapter()
	a.ResizeToFit(800, 480)
	before := len(rec.sizes)

	a.ResizeToFit(800, 480)
	if len(rec.sizes) != before {
		t.Errorf("unchanged grid must not call SetSize again")
	}
}

func TestLocalInputRouting(t *testing.T) {
	a, _ := newTestAdapter()

	var got []byte
	a.OnLocalInput(func(p []byte) { got = append(got, p...) })
	a.HandleLocalInput([]byte("ls"))

	if string(got) != "ls" {
		t.Fatalf("expected input forwarded to callback, got %q", got)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	a, rec := newTestAdapter()

	a.Dispose()
	a.Dispose()
	if rec.disposed != 1 {
		t.Fatalf("renderer must be disposed exactly once, got %d", rec.disposed)
	}

	// Po Dispose operacje są no-opami
	a.Write([]byte("data"))
	if len(rec.writes) != 0 {
		t.Error("write after dispose must be ignored")
	}
	a.HandleLocalInput([]byte("x"))
	if view := a.Render(); view != "" {
		t.Errorf("render after dispose must be empty, got %q", view)
	}
}

func TestViewportRendererBoundsScrollback(t *testing.T) {
	r := NewViewportRenderer()
	line := strings.Repeat("x", 127) + "\n"
	for i := 0; i < 1024; i++ {
		r.Write([]byte(line))
	}

	if len(r.buf) > maxScrollback {
		t.Fatalf("scrollback must stay within %d bytes, got %d", maxScrollback, len(r.buf))
	}
	// Bufor zaczyna się na granicy linii
	if len(r.buf) > 0 && r.buf[0] != 'x' {
		t.Errorf("scrollback must start at a line boundary, got %q", r.buf[0])
	}
}

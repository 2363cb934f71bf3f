// internal/surface/surface.go

// Pakiet surface oddziela sesję terminala od konkretnego renderera:
// adapter tłumaczy wymiary piksela na siatkę znaków, pilnuje minimów
// i zarządza cyklem życia powierzchni.
package surface

import (
	"sync"
)

const (
	// MinCols i MinRows - minimalna sensowna siatka terminala
	MinCols = 10
	MinRows = 5
)

// FontMetrics opisuje rozmiar komórki znakowej w pikselach
type FontMetrics struct {
	CellWidth  float64
	CellHeight float64
}

// Renderer rysuje zawartość terminala. Implementacja produkcyjna:
// ViewportRenderer na bubbles/viewport.
type Renderer interface {
	// Write dopisuje bajty wyjścia zdalnego terminala
	Write(p []byte)
	// SetSize zmienia rozmiar siatki renderera
	SetSize(cols, rows int)
	// Render zwraca bieżący widok jako tekst
	Render() string
}

// disposable pozwala rendererowi zwolnić zasoby przy Dispose
type disposable interface {
	Dispose()
}

// Adapter jest właścicielem powierzchni terminala jednej sesji.
// Wszystkie metody są bezpieczne współbieżnie; po Dispose stają się
// no-opami.
type Adapter struct {
	mu         sync.Mutex
	renderer   Renderer
	metrics    FontMetrics
	cols, rows int
	onInput    func(p []byte)
	disposed   bool
}

// NewAdapter tworzy adapter na rendererze, z domyślną siatką 80x24
func NewAdapter(renderer Renderer) *Adapter {
	a := &Adapter{
		renderer: renderer,
		cols:     80,
		rows:     24,
	}
	renderer.SetSize(a.cols, a.rows)
	return a
}

// Attach ustawia metryki fontu używane do przeliczania pikseli na siatkę
func (a *Adapter) Attach(metrics FontMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = metrics
}

// Write dopisuje wyjście zdalnego terminala do renderera
func (a *Adapter) Write(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.renderer.Write(p)
}

// Size zwraca bieżący rozmiar siatki
func (a *Adapter) Size() (cols, rows int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cols, a.rows
}

// ResizeToFit przelicza wymiary piksela na siatkę znaków i zmienia
// rozmiar renderera. Zerowa lub ujemna powierzchnia (panel zwinięty,
// okno w trakcie układania) zwraca poprzedni rozmiar bez żadnych
// efektów ubocznych. Wynik nigdy nie schodzi poniżej MinCols x MinRows.
func (a *Adapter) ResizeToFit(pxWidth, pxHeight float64) (cols, rows int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return a.cols, a.rows
	}
	if pxWidth <= 0 || pxHeight <= 0 || a.metrics.CellWidth <= 0 || a.metrics.CellHeight <= 0 {
		return a.cols, a.rows
	}

	cols = int(pxWidth / a.metrics.CellWidth)
	rows = int(pxHeight / a.metrics.CellHeight)
	if cols < MinCols {
		cols = MinCols
	}
	if rows < MinRows {
		rows = MinRows
	}

	if cols != a.cols || rows != a.rows {
		a.cols, a.rows = cols, rows
		a.renderer.SetSize(cols, rows)
	}
	return cols, rows
}

// SetGrid ustawia rozmiar siatki wprost (np. gdy zdalna strona
// zażądała konkretnego rozmiaru), z tymi samymi minimami
func (a *Adapter) SetGrid(cols, rows int) (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return a.cols, a.rows
	}
	if cols < MinCols {
		cols = MinCols
	}
	if rows < MinRows {
		rows = MinRows
	}
	if cols != a.cols || rows != a.rows {
		a.cols, a.rows = cols, rows
		a.renderer.SetSize(cols, rows)
	}
	return a.cols, a.rows
}

// OnLocalInput rejestruje odbiorcę wejścia lokalnego (klawiatura)
func (a *Adapter) OnLocalInput(cb func(p []byte)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onInput = cb
}

// HandleLocalInput przekazuje wejście lokalne do zarejestrowanego
// odbiorcy; bez odbiorcy wejście przepada
func (a *Adapter) HandleLocalInput(p []byte) {
	a.mu.Lock()
	cb := a.onInput
	disposed := a.disposed
	a.mu.Unlock()

	if disposed || cb == nil {
		return
	}
	cb(p)
}

// Render zwraca bieżący widok powierzchni
func (a *Adapter) Render() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return ""
	}
	return a.renderer.Render()
}

// Dispose zwalnia powierzchnię; kolejne wywołania są no-opami,
// a zapis i wejście po Dispose są ignorowane
func (a *Adapter) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.disposed = true
	a.onInput = nil
	if d, ok := a.renderer.(disposable); ok {
		d.Dispose()
	}
}

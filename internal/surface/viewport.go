// internal/surface/viewport.go

package surface

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

// maxScrollback ogranicza bufor przewijania powierzchni
const maxScrollback = 64 * 1024

// ViewportRenderer rysuje wyjście terminala w bubbles/viewport z
// ograniczonym buforem przewijania. Najstarsze dane wypadają z bufora
// na granicy linii.
type ViewportRenderer struct {
	vp  viewport.Model
	buf []byte
}

func NewViewportRenderer() *ViewportRenderer {
	return &ViewportRenderer{
		vp: viewport.New(80, 24),
	}
}

// Write dopisuje bajty wyjścia i przewija widok na koniec
func (r *ViewportRenderer) Write(p []byte) {
	r.buf = append(r.buf, p...)
	if len(r.buf) > maxScrollback {
		cut := len(r.buf) - maxScrollback
		// Tniemy na granicy linii żeby nie zostawiać urwanego wiersza
		if nl := strings.IndexByte(string(r.buf[cut:]), '\n'); nl >= 0 {
			cut += nl + 1
		}
		r.buf = r.buf[cut:]
	}
	r.vp.SetContent(string(r.buf))
	r.vp.GotoBottom()
}

// SetSize zmienia rozmiar siatki viewportu
func (r *ViewportRenderer) SetSize(cols, rows int) {
	r.vp.Width = cols
	r.vp.Height = rows
	r.vp.GotoBottom()
}

// Render zwraca bieżący widok
func (r *ViewportRenderer) Render() string {
	return r.vp.View()
}

// ScrollUp i ScrollDown przewijają bufor o podaną liczbę wierszy
func (r *ViewportRenderer) ScrollUp(lines int)   { r.vp.LineUp(lines) }
func (r *ViewportRenderer) ScrollDown(lines int) { r.vp.LineDown(lines) }

// Dispose zwalnia bufor
func (r *ViewportRenderer) Dispose() {
	r.buf = nil
	r.vp.SetContent("")
}

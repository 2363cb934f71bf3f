// internal/session/paste.go

package session

import (
	"strings"

	"github.com/atotto/clipboard"
)

// Clipboard odcina sesję od schowka systemowego; testy podstawiają
// własny
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard używa schowka systemowego (atotto/clipboard)
type SystemClipboard struct{}

func (SystemClipboard) ReadAll() (string, error) {
	return clipboard.ReadAll()
}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// NormalizePaste sprowadza końce linii wklejanego tekstu do
// zakończenia oczekiwanego przez zdalną stronę: najpierw CRLF i
// samotne CR do LF, potem LF do podanego terminatora
func NormalizePaste(text, terminator string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if terminator == "\n" {
		return text
	}
	return strings.ReplaceAll(text, "\n", terminator)
}

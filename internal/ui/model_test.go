// internal/ui/model_test.go

package ui

import (
	"bytes"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"sshmux/internal/transport"
)

func TestKeyToBytes(t *testing.T) {
	cases := []struct {
		name string
		msg  tea.KeyMsg
		want []byte
	}{
		{"runes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ls")}, []byte("ls")},
		{"enter is cr", tea.KeyMsg{Type: tea.KeyEnter}, []byte("\r")},
		{"backspace is del", tea.KeyMsg{Type: tea.KeyBackspace}, []byte{0x7f}},
		{"arrow up", tea.KeyMsg{Type: tea.KeyUp}, []byte("\x1b[A")},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, []byte{0x03}},
		{"unmapped", tea.KeyMsg{Type: tea.KeyF1}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := keyToBytes(tc.msg); !bytes.Equal(got, tc.want) {
				t.Errorf("keyToBytes() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStateMarker(t *testing.T) {
	if got := stateMarker(transport.StateStreaming); got != "" {
		t.Errorf("streaming tab needs no marker, got %q", got)
	}
	if got := stateMarker(transport.StateStale); got != " !" {
		t.Errorf("stale marker = %q, want %q", got, " !")
	}
	if got := stateMarker(transport.StateClosed); got != " x" {
		t.Errorf("closed marker = %q, want %q", got, " x")
	}
}

func TestParseTransferCommand(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		upload  bool
		src     string
		dst     string
		wantErr bool
	}{
		{"put", "put /tmp/a.txt /home/admin/a.txt", true, "/tmp/a.txt", "/home/admin/a.txt", false},
		{"get", "get /var/log/syslog /tmp/syslog", false, "/var/log/syslog", "/tmp/syslog", false},
		{"extra whitespace", "  put  a  b  ", true, "a", "b", false},
		{"unknown verb", "move a b", false, "", "", true},
		{"too few args", "put a", false, "", "", true},
		{"empty", "", false, "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			upload, src, dst, err := parseTransferCommand(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTransferCommand(%q) failed: %v", tc.input, err)
			}
			if upload != tc.upload || src != tc.src || dst != tc.dst {
				t.Errorf("got (%v, %q, %q), want (%v, %q, %q)", upload, src, dst, tc.upload, tc.src, tc.dst)
			}
		})
	}
}

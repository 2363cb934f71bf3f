// internal/session/session.go

// Pakiet session spina połączenie transportowe z powierzchnią
// terminala: jedna sesja to jedna karta (lub panel) z własnym
// połączeniem, rendererem i schowkiem.
package session

import (
	"fmt"
	"strings"
	"sync"

	"pkt.systems/pslog"

	"sshmux/internal/models"
	"sshmux/internal/surface"
	"sshmux/internal/transfer"
	"sshmux/internal/transport"
)

// maxPendingInput ogranicza bufor wejścia zebranego zanim połączenie
// zacznie streamować
const maxPendingInput = 8 * 1024

// Session jest pojedynczą sesją terminala: połączenie, powierzchnia,
// schowek. Zdarzenia połączenia są pompowane do powierzchni i
// przekazywane dalej do UI przez notify.
type Session struct {
	id    int
	host  models.Host
	conn  *transport.Conn
	surf  *surface.Adapter
	clip  Clipboard
	log   pslog.Logger
	notify func(ev transport.Event)

	mu           sync.Mutex
	title        string
	pendingInput []byte
	pasteBusy    bool
	closed       bool

	pumpOnce sync.Once
}

// New tworzy sesję. notify może być nil; wtedy zdarzenia trafiają
// tylko do powierzchni.
func New(id int, title string, host models.Host, conn *transport.Conn, surf *surface.Adapter, clip Clipboard, log pslog.Logger, notify func(ev transport.Event)) *Session {
	s := &Session{
		id:     id,
		title:  title,
		host:   host,
		conn:   conn,
		surf:   surf,
		clip:   clip,
		log:    log.With("session", id),
		notify: notify,
	}
	surf.OnLocalInput(s.SendLocalInput)
	return s
}

func (s *Session) ID() int { return s.id }

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) Host() models.Host { return s.host }

func (s *Session) State() transport.State { return s.conn.State() }

// Surface zwraca powierzchnię sesji (do układania paneli w UI)
func (s *Session) Surface() *surface.Adapter { return s.surf }

// View zwraca bieżący widok powierzchni
func (s *Session) View() string { return s.surf.Render() }

// Open uruchamia sesję. Host bez kompletu danych uwierzytelniających
// dostaje od razu prośbę o nie - bez żadnej próby transportowej;
// połączenie otworzy dopiero SubmitCredentials.
func (s *Session) Open() error {
	if !s.host.HasCredentials() {
		s.log.Info("credentials required before connect", "host", s.host.IP)
		s.emit(transport.Event{Type: transport.EventNeedCredentials})
		return nil
	}

	s.startPump()
	if err := s.conn.Open(); err != nil {
		return fmt.Errorf("failed to open session: %v", err)
	}
	return nil
}

// SubmitCredentials uzupełnia dane uwierzytelniające i wznawia
// handshake; otwiera połączenie jeśli sesja czekała na dane
func (s *Session) SubmitCredentials(secret, keyData string) {
	if secret != "" {
		s.host.Secret = secret
	}
	if keyData != "" {
		s.host.KeyData = keyData
	}
	s.startPump()
	s.conn.SubmitCredentials(secret, keyData)
}

// SendLocalInput wysyła wejście użytkownika. Poza stanem Streaming
// wejście jest buforowane (do maxPendingInput) i wysyłane po wejściu
// w streaming.
func (s *Session) SendLocalInput(p []byte) {
	err := s.conn.SendInput(p)
	if err == nil {
		return
	}
	if err != transport.ErrNotStreaming {
		s.log.Warn("failed to send input", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingInput = append(s.pendingInput, p...)
	if len(s.pendingInput) > maxPendingInput {
		// Najstarsze wejście wypada z bufora
		s.pendingInput = s.pendingInput[len(s.pendingInput)-maxPendingInput:]
	}
}

// RequestResize dopasowuje powierzchnię do wymiarów piksela panelu
// i negocjuje nowy rozmiar ze zdalną stroną
func (s *Session) RequestResize(pxWidth, pxHeight float64) {
	cols, rows := s.surf.ResizeToFit(pxWidth, pxHeight)
	s.conn.RequestResize(cols, rows)
}

// CopyToClipboard kopiuje tekst do schowka systemowego
func (s *Session) CopyToClipboard(text string) error {
	if err := s.clip.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %v", err)
	}
	return nil
}

// Paste wkleja zawartość schowka do sesji. Wklejanie jest
// serializowane; błąd schowka jest ostrzeżeniem, nie błędem sesji.
func (s *Session) Paste() error {
	s.mu.Lock()
	if s.pasteBusy {
		s.mu.Unlock()
		return nil
	}
	s.pasteBusy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pasteBusy = false
		s.mu.Unlock()
	}()

	text, err := s.clip.ReadAll()
	if err != nil {
		s.log.Warn("clipboard read failed", "err", err)
		return nil
	}
	if text == "" {
		return nil
	}

	normalized := NormalizePaste(text, s.conn.LineTerminator())
	s.SendLocalInput([]byte(normalized))
	return nil
}

// Transfer otwiera warstwę transferu plików na kliencie SSH sesji.
// Dostępne tylko na kanale SSH po ukończonym handshake; kanał
// WebSocket nie przenosi plików.
func (s *Session) Transfer() (*transfer.FileTransfer, error) {
	sshCh, ok := s.conn.Channel().(*transport.SSHChannel)
	if !ok {
		return nil, fmt.Errorf("file transfer requires an ssh channel")
	}
	client := sshCh.Client()
	if client == nil {
		return nil, fmt.Errorf("file transfer requires an established connection")
	}
	return transfer.New(client)
}

// Close zamyka sesję w ustalonej kolejności: watchdog, transport,
// powierzchnia, rejestr. Panika w jednym kroku nie zatrzymuje pozostałych.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []string
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Sprintf("%s panicked: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}

	step("stop watchdog", func() error {
		s.conn.StopWatchdog()
		return nil
	})
	step("disconnect", s.conn.Disconnect)
	step("dispose surface", func() error {
		s.surf.Dispose()
		return nil
	})
	step("release", func() error {
		s.conn.Release()
		return nil
	})

	if len(errs) > 0 {
		return fmt.Errorf("errors during session close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// startPump uruchamia pompę zdarzeń połączenia; dokładnie raz
func (s *Session) startPump() {
	s.pumpOnce.Do(func() {
		go s.pump()
	})
}

func (s *Session) pump() {
	for ev := range s.conn.Events() {
		switch ev.Type {
		case transport.EventData:
			s.surf.Write(ev.Data)

		case transport.EventState:
			if ev.State == transport.StateStreaming {
				s.flushPending()
			}

		case transport.EventRemoteResize:
			s.surf.SetGrid(ev.Cols, ev.Rows)
		}

		s.emit(ev)
		if ev.Type == transport.EventClosed {
			return
		}
	}
}

func (s *Session) flushPending() {
	s.mu.Lock()
	pending := s.pendingInput
	s.pendingInput = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	if err := s.conn.SendInput(pending); err != nil {
		s.log.Warn("failed to flush pending input", "err", err)
	}
}

func (s *Session) emit(ev transport.Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

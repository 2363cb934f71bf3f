// internal/transport/channel.go

package transport

import (
	"context"
	"sync"

	"sshmux/internal/models"
)

// Channel jest dwukierunkowym kanałem wiadomości do jednego zdalnego
// hosta. Implementacje: SSHChannel (golang.org/x/crypto/ssh) oraz
// WSChannel (gorilla/websocket). Kanał nie ponawia połączeń - to
// odpowiedzialność Conn, który na każdą próbę tworzy świeży kanał.
type Channel interface {
	// Open otwiera kanał transportowy (bez uwierzytelnienia)
	Open(ctx context.Context) error
	// Send wysyła wiadomość; MsgConnect wykonuje handshake z danymi
	// uwierzytelniającymi i rozmiarem siatki
	Send(msg Message) error
	// Receive blokuje do nadejścia wiadomości albo błędu kanału
	Receive() (Message, error)
	// LineTerminator zwraca zakończenie linii oczekiwane przez zdalną stronę
	LineTerminator() string
	// Close zwalnia kanał; bezpieczne wielokrotne wywołanie
	Close() error
}

// Dialer tworzy nowy kanał dla hosta. Conn wywołuje go przy każdej
// próbie połączenia (także przy reconnect).
type Dialer func(host models.Host) Channel

// Registry jest jawnym rejestrem aktywnych kanałów, utrzymywanym przez
// kontekst aplikacji i przekazywanym do konstruktora połączenia.
// Służy wyłącznie do introspekcji i awaryjnego sprzątania - wpis nie
// może przeżyć swojego połączenia.
type Registry struct {
	mu       sync.Mutex
	channels map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

// Put rejestruje kanał połączenia; poprzedni wpis jest nadpisywany
// (kolejna generacja kanału po reconnect)
func (r *Registry) Put(id string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[id] = ch
}

// Remove usuwa wpis połączenia
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
}

// Get zwraca kanał połączenia jeśli istnieje
func (r *Registry) Get(id string) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// Len zwraca liczbę aktywnych wpisów
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// CloseAll wymusza zamknięcie wszystkich kanałów przy globalnym
// zamykaniu aplikacji
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
}

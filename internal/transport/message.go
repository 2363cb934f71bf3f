// internal/transport/message.go

package transport

// MessageType identyfikuje logiczny typ wiadomości na kanale.
// Kanał WebSocket przesyła je jako JSON; kanał SSH mapuje je na
// natywne operacje protokołu (RequestPty, WindowChange, keepalive).
type MessageType string

const (
	MsgConnect        MessageType = "connect"
	MsgData           MessageType = "data"
	MsgResize         MessageType = "resize"
	MsgPing           MessageType = "heartbeat-ping"
	MsgPong           MessageType = "heartbeat-pong"
	MsgError          MessageType = "error"
	MsgNoAuthRequired MessageType = "no-auth-required"
)

// Message jest pojedynczą wiadomością kanału, w obu kierunkach.
// Pola nieużywane przez dany typ pozostają puste.
type Message struct {
	Type       MessageType `json:"type"`
	Cols       int         `json:"cols,omitempty"`
	Rows       int         `json:"rows,omitempty"`
	Data       []byte      `json:"data,omitempty"` // JSON koduje []byte jako base64
	IP         string      `json:"ip,omitempty"`
	User       string      `json:"user,omitempty"`
	Port       string      `json:"port,omitempty"`
	AuthMethod string      `json:"auth_method,omitempty"`
	Secret     string      `json:"secret,omitempty"`
	Err        string      `json:"error,omitempty"`
}

// EventType identyfikuje zdarzenie emitowane przez połączenie do sesji
type EventType int

const (
	// EventState - zmiana stanu maszyny stanów
	EventState EventType = iota
	// EventData - odebrane bajty wyjścia zdalnego terminala
	EventData
	// EventRemoteResize - zdalna strona zażądała zmiany rozmiaru
	EventRemoteResize
	// EventNeedCredentials - potrzebne dane uwierzytelniające
	// (najwyżej raz na próbę połączenia)
	EventNeedCredentials
	// EventReconnecting - trwa ponawianie połączenia
	EventReconnecting
	// EventFatal - wyczerpano próby, połączenie martwe
	EventFatal
	// EventClosed - połączenie zamknięte, ostatnie zdarzenie
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventState:
		return "state"
	case EventData:
		return "data"
	case EventRemoteResize:
		return "remote-resize"
	case EventNeedCredentials:
		return "need-credentials"
	case EventReconnecting:
		return "reconnecting"
	case EventFatal:
		return "fatal"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event niesie jedno zdarzenie połączenia. Zdarzenia pojedynczego
// połączenia są dostarczane w kolejności powstania.
type Event struct {
	Type    EventType
	State   State
	Data    []byte
	Cols    int
	Rows    int
	Attempt int
	Err     error
}

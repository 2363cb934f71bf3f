// internal/models/host.go

package models

// AuthMethod określa sposób uwierzytelnienia na zdalnym hoście
type AuthMethod int

const (
	AuthNone AuthMethod = iota
	AuthPassword
	AuthKey
)

func (a AuthMethod) String() string {
	switch a {
	case AuthPassword:
		return "password"
	case AuthKey:
		return "key"
	default:
		return "none"
	}
}

// ParseAuthMethod zamienia nazwę metody na AuthMethod
func ParseAuthMethod(s string) AuthMethod {
	switch s {
	case "password":
		return AuthPassword
	case "key":
		return AuthKey
	default:
		return AuthNone
	}
}

// Transporty obsługiwane przez warstwę połączeń
const (
	TransportSSH       = "ssh"
	TransportWebsocket = "websocket"
)

// Host opisuje pojedynczy zdalny host. Sesja terminala trzyma własną
// kopię przez cały czas życia - oryginał należy do katalogu hostów.
type Host struct {
	DisplayName string     `json:"display_name"`
	Login       string     `json:"login"`
	IP          string     `json:"ip"`
	Port        string     `json:"port"`
	Transport   string     `json:"transport,omitempty"` // puste = ssh
	AuthMethod  AuthMethod `json:"auth_method"`
	Secret      string     `json:"secret,omitempty"`   // hasło (zaszyfrowane w pliku konfiguracji)
	KeyData     string     `json:"key_data,omitempty"` // materiał klucza PEM
	Theme       string     `json:"theme,omitempty"`
	Folder      string     `json:"folder,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// Addr zwraca adres do połączenia w formacie host:port
func (h Host) Addr() string {
	port := h.Port
	if port == "" {
		port = "22"
	}
	return h.IP + ":" + port
}

// UsesWebsocket sprawdza czy host łączy się przez bramę WebSocket
func (h Host) UsesWebsocket() bool {
	return h.Transport == TransportWebsocket
}

// TitleBase zwraca bazę tytułu karty: nazwę wyświetlaną albo adres IP
func (h Host) TitleBase() string {
	if h.DisplayName != "" {
		return h.DisplayName
	}
	return h.IP
}

// HasCredentials sprawdza czy host ma komplet danych uwierzytelniających
func (h Host) HasCredentials() bool {
	switch h.AuthMethod {
	case AuthPassword:
		return h.Secret != ""
	case AuthKey:
		return h.KeyData != ""
	default:
		return true
	}
}

type Config struct {
	Hosts []Host `json:"hosts"`
}

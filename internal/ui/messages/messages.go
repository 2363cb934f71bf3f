// internal/ui/messages/messages.go

package messages

import "sshmux/internal/transport"

// SessionEventMsg niesie zdarzenie połączenia jednej sesji do pętli
// programu; wstrzykiwane przez tea.Program.Send z pompy sesji
type SessionEventMsg struct {
	SessionID int
	Event     transport.Event
}

// CredentialsEnteredMsg - użytkownik podał dane uwierzytelniające
type CredentialsEnteredMsg struct {
	SessionID int
	Secret    string
}

// StatusMsg ustawia komunikat w pasku stanu
type StatusMsg string

// ErrMsg niesie błąd operacji do paska stanu
type ErrMsg struct {
	Err error
}

// TabClosedMsg - karta zamknięta (z pętli programu albo zdalnie)
type TabClosedMsg struct {
	SessionID int
}

// internal/ui/model.go

package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"pkt.systems/pslog"

	"sshmux/internal/config"
	"sshmux/internal/session"
	"sshmux/internal/tabs"
	"sshmux/internal/transport"
	"sshmux/internal/ui/messages"
)

type mode int

const (
	modeTerminal mode = iota
	modePicker
	modeCredentials
	modeTransfer
)

// Model jest głównym modelem bubbletea: pasek kart, panele terminali,
// wybór hosta i prompt o dane uwierzytelniające
type Model struct {
	registry *tabs.Registry
	hosts    *config.Manager
	keys     KeyMap
	log      pslog.Logger

	width  int
	height int

	mode          mode
	pickerIndex   int
	credInput     textinput.Model
	transferInput textinput.Model
	credSessionID int
	status        string
	quitting      bool
}

func NewModel(registry *tabs.Registry, hosts *config.Manager, log pslog.Logger) *Model {
	credInput := textinput.New()
	credInput.Placeholder = "password"
	credInput.EchoMode = textinput.EchoPassword
	credInput.CharLimit = 128

	transferInput := textinput.New()
	transferInput.Placeholder = "put <local> <remote> | get <remote> <local>"
	transferInput.CharLimit = 512

	return &Model{
		registry:      registry,
		hosts:         hosts,
		keys:          DefaultKeyMap(),
		log:           log,
		credInput:     credInput,
		transferInput: transferInput,
		mode:          modePicker, // start od wyboru hosta
	}
}

// SetSize ustawia początkowy rozmiar terminala, zanim przyjdzie
// pierwszy WindowSizeMsg
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.relayout()
		return m, nil

	case messages.SessionEventMsg:
		return m.handleSessionEvent(msg)

	case messages.StatusMsg:
		m.status = string(msg)
		return m, nil

	case messages.ErrMsg:
		m.status = ErrorStyle.Render(msg.Err.Error())
		return m, nil

	case messages.TabClosedMsg:
		m.relayout()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeCredentials:
			return m.updateCredentials(msg)
		case modePicker:
			return m.updatePicker(msg)
		case modeTransfer:
			return m.updateTransfer(msg)
		default:
			return m.updateTerminal(msg)
		}
	}

	return m, nil
}

func (m *Model) handleSessionEvent(msg messages.SessionEventMsg) (tea.Model, tea.Cmd) {
	switch msg.Event.Type {
	case transport.EventNeedCredentials:
		m.mode = modeCredentials
		m.credSessionID = msg.SessionID
		m.credInput.Reset()
		m.credInput.Focus()
		if sess, ok := m.registry.Get(msg.SessionID); ok {
			m.status = fmt.Sprintf("password for %s@%s", sess.Host().Login, sess.Host().IP)
		}
		return m, textinput.Blink

	case transport.EventReconnecting:
		m.status = fmt.Sprintf("reconnecting (attempt %d)...", msg.Event.Attempt)

	case transport.EventFatal:
		m.status = ErrorStyle.Render(fmt.Sprintf("connection lost: %v", msg.Event.Err))

	case transport.EventState:
		if msg.Event.State == transport.StateStreaming {
			m.status = ""
			m.relayout()
		}
	}
	return m, nil
}

func (m *Model) updateCredentials(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		secret := m.credInput.Value()
		m.credInput.Reset()
		m.mode = modeTerminal
		if sess, ok := m.registry.Get(m.credSessionID); ok && secret != "" {
			sess.SubmitCredentials(secret, "")
			m.status = "authenticating..."
		}
		return m, nil

	case tea.KeyEsc:
		// Rezygnacja z uwierzytelnienia zamyka kartę
		m.mode = modeTerminal
		id := m.credSessionID
		return m, func() tea.Msg {
			if err := m.registry.Close(id); err != nil && err != tabs.ErrNotFound {
				return messages.ErrMsg{Err: err}
			}
			return messages.TabClosedMsg{SessionID: id}
		}
	}

	var cmd tea.Cmd
	m.credInput, cmd = m.credInput.Update(msg)
	return m, cmd
}

func (m *Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	hosts := m.hosts.GetHosts()

	switch {
	case msg.Type == tea.KeyUp:
		if m.pickerIndex > 0 {
			m.pickerIndex--
		}
	case msg.Type == tea.KeyDown:
		if m.pickerIndex < len(hosts)-1 {
			m.pickerIndex++
		}
	case msg.Type == tea.KeyEnter:
		if len(hosts) == 0 {
			m.status = ErrorStyle.Render("no hosts configured - edit " + m.hosts.GetConfigPath())
			return m, nil
		}
		index := m.pickerIndex
		m.mode = modeTerminal
		return m, m.openTab(index)
	case msg.Type == tea.KeyEsc:
		if m.registry.Len() > 0 {
			m.mode = modeTerminal
		}
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	}
	return m, nil
}

func (m *Model) updateTerminal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.NewTab):
		m.mode = modePicker
		m.pickerIndex = 0
		return m, nil

	case key.Matches(msg, m.keys.NextTab):
		m.activateNeighbor(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevTab):
		m.activateNeighbor(-1)
		return m, nil

	case key.Matches(msg, m.keys.CloseTab):
		active := m.registry.Active()
		if active == nil {
			return m, nil
		}
		id := active.ID()
		return m, func() tea.Msg {
			if err := m.registry.Close(id); err != nil && err != tabs.ErrNotFound {
				return messages.ErrMsg{Err: err}
			}
			return messages.TabClosedMsg{SessionID: id}
		}

	case key.Matches(msg, m.keys.ToggleSplit):
		active := m.registry.Active()
		if active == nil {
			return m, nil
		}
		if err := m.registry.ToggleSplit(active.ID()); err != nil {
			m.status = ErrorStyle.Render(err.Error())
			return m, nil
		}
		m.relayout()
		return m, nil

	case key.Matches(msg, m.keys.Paste):
		active := m.registry.Active()
		if active == nil {
			return m, nil
		}
		return m, func() tea.Msg {
			if err := active.Paste(); err != nil {
				return messages.ErrMsg{Err: err}
			}
			return nil
		}

	case key.Matches(msg, m.keys.Transfer):
		active := m.registry.Active()
		if active == nil || active.State() != transport.StateStreaming {
			m.status = ErrorStyle.Render("file transfer needs a streaming session")
			return m, nil
		}
		m.mode = modeTransfer
		m.transferInput.Reset()
		m.transferInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Reconnect):
		active := m.registry.Active()
		if active == nil || active.State() != transport.StateClosed {
			return m, nil
		}
		// Ponowne otwarcie na zachowanych danych uwierzytelniających
		active.SubmitCredentials("", "")
		m.status = "reconnecting..."
		return m, nil
	}

	// Pozostałe klawisze idą do aktywnej sesji
	if active := m.registry.Active(); active != nil {
		if input := keyToBytes(msg); len(input) > 0 {
			active.SendLocalInput(input)
		}
	}
	return m, nil
}

func (m *Model) updateTransfer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		input := m.transferInput.Value()
		m.transferInput.Reset()
		m.mode = modeTerminal
		active := m.registry.Active()
		if active == nil || strings.TrimSpace(input) == "" {
			return m, nil
		}
		m.status = "transferring..."
		return m, m.runTransfer(active, input)

	case tea.KeyEsc:
		m.transferInput.Reset()
		m.mode = modeTerminal
		return m, nil
	}

	var cmd tea.Cmd
	m.transferInput, cmd = m.transferInput.Update(msg)
	return m, cmd
}

// runTransfer wykonuje polecenie transferu na kliencie SSH aktywnej
// sesji, poza pętlą Update
func (m *Model) runTransfer(sess *session.Session, input string) tea.Cmd {
	return func() tea.Msg {
		upload, src, dst, err := parseTransferCommand(input)
		if err != nil {
			return messages.ErrMsg{Err: err}
		}
		ft, err := sess.Transfer()
		if err != nil {
			return messages.ErrMsg{Err: err}
		}
		defer ft.Close()

		if upload {
			if err := ft.Upload(context.Background(), src, dst, nil); err != nil {
				return messages.ErrMsg{Err: err}
			}
			return messages.StatusMsg("uploaded " + filepath.Base(src))
		}
		if err := ft.Download(context.Background(), src, dst, nil); err != nil {
			return messages.ErrMsg{Err: err}
		}
		return messages.StatusMsg("downloaded " + filepath.Base(src))
	}
}

// parseTransferCommand rozbiera polecenie transferu:
// "put <lokalny> <zdalny>" wysyła plik, "get <zdalny> <lokalny>" pobiera
func parseTransferCommand(input string) (upload bool, src, dst string, err error) {
	fields := strings.Fields(input)
	if len(fields) != 3 {
		return false, "", "", fmt.Errorf("usage: put <local> <remote> | get <remote> <local>")
	}
	switch fields[0] {
	case "put":
		return true, fields[1], fields[2], nil
	case "get":
		return false, fields[1], fields[2], nil
	}
	return false, "", "", fmt.Errorf("unknown transfer command %q", fields[0])
}

func (m *Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if err := m.registry.CloseAll(); err != nil {
		m.log.Warn("errors while closing tabs", "err", err)
	}
	return m, tea.Quit
}

// openTab otwiera kartę dla hosta o podanym indeksie katalogu
func (m *Model) openTab(index int) tea.Cmd {
	return func() tea.Msg {
		host, err := m.hosts.OpenHost(index)
		if err != nil {
			return messages.ErrMsg{Err: err}
		}
		if _, err := m.registry.Open(host); err != nil {
			return messages.ErrMsg{Err: err}
		}
		return messages.StatusMsg("connecting to " + host.TitleBase() + "...")
	}
}

func (m *Model) activateNeighbor(direction int) {
	sessions := m.registry.Sessions()
	if len(sessions) == 0 {
		return
	}
	activeID := m.registry.ActiveID()
	current := 0
	for i, sess := range sessions {
		if sess.ID() == activeID {
			current = i
			break
		}
	}
	next := (current + direction + len(sessions)) % len(sessions)
	if err := m.registry.Activate(sessions[next].ID()); err == nil {
		m.relayout()
	}
}

// relayout dopasowuje widoczne powierzchnie do bieżącego podziału
// ekranu. W TUI komórka terminala jest "pikselem", więc metryki fontu
// sesji to 1x1 i przeliczenie degeneruje się do wymiarów panelu.
func (m *Model) relayout() {
	visible := m.registry.Visible()
	if len(visible) == 0 || m.width == 0 {
		return
	}

	paneWidth := m.width/len(visible) - 2  // ramka
	paneHeight := m.height - 4             // pasek kart, status, ramka
	for _, sess := range visible {
		sess.RequestResize(float64(paneWidth), float64(paneHeight))
	}
}

func (m *Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	switch m.mode {
	case modePicker:
		return m.viewPicker()
	case modeCredentials:
		return m.viewCredentials()
	case modeTransfer:
		return m.viewTransfer()
	default:
		return m.viewTerminal()
	}
}

func (m *Model) viewPicker() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Select host"))
	b.WriteString("\n\n")

	hosts := m.hosts.GetHosts()
	if len(hosts) == 0 {
		b.WriteString(ItemStyle.Render("  no hosts in " + m.hosts.GetConfigPath()))
		b.WriteString("\n")
	}
	for i, host := range hosts {
		label := fmt.Sprintf("%s (%s@%s)", host.TitleBase(), host.Login, host.Addr())
		if i == m.pickerIndex {
			b.WriteString(SelectedItemStyle.Render("> " + label))
		} else {
			b.WriteString(ItemStyle.Render("  " + label))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(StatusBarStyle.Render("enter: connect  esc: back  ctrl+q: quit"))
	if m.status != "" {
		b.WriteString("\n" + m.status)
	}
	return b.String()
}

func (m *Model) viewCredentials() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Authentication required"))
	b.WriteString("\n\n")
	if m.status != "" {
		b.WriteString("  " + m.status + "\n\n")
	}
	b.WriteString(InputStyle.Render(m.credInput.View()))
	b.WriteString("\n\n")
	b.WriteString(StatusBarStyle.Render("enter: submit  esc: cancel"))
	return b.String()
}

func (m *Model) viewTransfer() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("File transfer"))
	b.WriteString("\n\n")
	b.WriteString(InputStyle.Render(m.transferInput.View()))
	b.WriteString("\n\n")
	b.WriteString(StatusBarStyle.Render("put <local> <remote>  get <remote> <local>  esc: cancel"))
	return b.String()
}

func (m *Model) viewTerminal() string {
	var b strings.Builder
	b.WriteString(m.viewTabBar())
	b.WriteString("\n")

	visible := m.registry.Visible()
	if len(visible) == 0 {
		b.WriteString("\n" + ItemStyle.Render("  no open tabs - ctrl+t to connect"))
	} else {
		panes := make([]string, 0, len(visible))
		paneWidth := m.width/len(visible) - 2
		activeID := m.registry.ActiveID()
		for _, sess := range visible {
			style := PaneStyle
			if sess.ID() == activeID {
				style = ActivePaneStyle
			}
			panes = append(panes, style.Width(paneWidth).Render(m.paneContent(sess.ID())))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panes...))
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
	} else {
		b.WriteString(StatusBarStyle.Render("ctrl+t: new  ctrl+w: close  ctrl+s: split  ctrl+v: paste  ctrl+f: transfer  ctrl+q: quit"))
	}
	return b.String()
}

// paneContent zwraca zawartość panelu; martwa sesja dostaje komunikat
// z ofertą ponownego połączenia zamiast zamrożonego ekranu
func (m *Model) paneContent(id int) string {
	sess, ok := m.registry.Get(id)
	if !ok {
		return ""
	}
	if sess.State() == transport.StateClosed {
		return ErrorStyle.Render("connection closed") + "\n" +
			StatusBarStyle.Render("ctrl+r: reconnect  ctrl+w: close tab")
	}
	return sess.View()
}

func (m *Model) viewTabBar() string {
	sessions := m.registry.Sessions()
	if len(sessions) == 0 {
		return TitleStyle.Render("sshmux")
	}

	activeID := m.registry.ActiveID()
	splitIDs := make(map[int]struct{})
	for _, id := range m.registry.SplitIDs() {
		splitIDs[id] = struct{}{}
	}

	parts := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		label := sess.Title() + stateMarker(sess.State())
		switch {
		case sess.ID() == activeID:
			parts = append(parts, ActiveTabStyle.Render(label))
		case hasID(splitIDs, sess.ID()):
			parts = append(parts, SplitTabStyle.Render("|"+label+"|"))
		default:
			parts = append(parts, TabStyle.Render(label))
		}
	}
	return strings.Join(parts, " ")
}

func hasID(set map[int]struct{}, id int) bool {
	_, ok := set[id]
	return ok
}

// stateMarker dokleja do tytułu karty znacznik stanu połączenia
func stateMarker(state transport.State) string {
	switch state {
	case transport.StateConnecting, transport.StateReconnecting:
		return " ~"
	case transport.StateAwaitingAuth:
		return " ?"
	case transport.StateStale:
		return " !"
	case transport.StateClosed:
		return " x"
	default:
		return ""
	}
}

// keyToBytes tłumaczy klawisz bubbletea na bajty dla zdalnego PTY
func keyToBytes(msg tea.KeyMsg) []byte {
	switch msg.Type {
	case tea.KeyRunes:
		return []byte(string(msg.Runes))
	case tea.KeyEnter:
		return []byte("\r")
	case tea.KeySpace:
		return []byte(" ")
	case tea.KeyTab:
		return []byte("\t")
	case tea.KeyBackspace:
		return []byte{0x7f}
	case tea.KeyEsc:
		return []byte{0x1b}
	case tea.KeyUp:
		return []byte("\x1b[A")
	case tea.KeyDown:
		return []byte("\x1b[B")
	case tea.KeyRight:
		return []byte("\x1b[C")
	case tea.KeyLeft:
		return []byte("\x1b[D")
	case tea.KeyHome:
		return []byte("\x1b[H")
	case tea.KeyEnd:
		return []byte("\x1b[F")
	case tea.KeyPgUp:
		return []byte("\x1b[5~")
	case tea.KeyPgDown:
		return []byte("\x1b[6~")
	case tea.KeyDelete:
		return []byte("\x1b[3~")
	case tea.KeyCtrlC:
		return []byte{0x03}
	case tea.KeyCtrlD:
		return []byte{0x04}
	case tea.KeyCtrlZ:
		return []byte{0x1a}
	case tea.KeyCtrlL:
		return []byte{0x0c}
	case tea.KeyCtrlA:
		return []byte{0x01}
	case tea.KeyCtrlE:
		return []byte{0x05}
	case tea.KeyCtrlU:
		return []byte{0x15}
	case tea.KeyCtrlK:
		return []byte{0x0b}
	}
	return nil
}

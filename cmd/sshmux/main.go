// cmd/sshmux/main.go

package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	mobyterm "github.com/moby/term"
	"golang.org/x/term"
	"pkt.systems/pslog"

	"sshmux/internal/config"
	"sshmux/internal/crypto"
	"sshmux/internal/logging"
	"sshmux/internal/models"
	"sshmux/internal/session"
	"sshmux/internal/surface"
	"sshmux/internal/tabs"
	"sshmux/internal/transport"
	"sshmux/internal/ui"
	"sshmux/internal/ui/messages"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sshmux: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Log do pliku - TUI zajmuje stdout
	logPath, err := config.GetDefaultLogPath()
	if err != nil {
		logPath = config.DefaultLogFileName
	}
	logger, closeLog, err := logging.Setup(logPath)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %v", err)
	}
	defer func() {
		_ = closeLog()
	}()

	// Katalog hostów
	configPath, err := config.GetDefaultConfigPath()
	if err != nil {
		fmt.Printf("Warning: Could not determine config path: %v\n", err)
		configPath = config.DefaultConfigFileName
	}
	manager := config.NewManager(configPath)
	if err := manager.Load(); err != nil {
		return fmt.Errorf("failed to load host catalog: %v", err)
	}

	// Hasło główne odszyfrowuje sekrety hostów; puste = katalog jawny
	if password, err := readMasterPassword(); err == nil && password != "" {
		key := crypto.GenerateKeyFromPassword(password)
		manager.SetCipher(crypto.NewCipher(string(key)))
	}

	channels := transport.NewRegistry()
	program := &programRef{}

	registry := tabs.NewRegistry(sessionFactory(channels, program, logger))
	model := ui.NewModel(registry, manager, logger)

	// Rozmiar początkowy, zanim bubbletea przyśle pierwszy WindowSizeMsg
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		model.SetSize(w, h)
	} else if ws, err := mobyterm.GetWinsize(os.Stdout.Fd()); err == nil {
		model.SetSize(int(ws.Width), int(ws.Height))
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	program.set(p)

	logger.Info("starting", "config", configPath, "log", logPath)
	_, runErr := p.Run()

	// Porządek przy wyjściu: najpierw sesje, potem sierocę kanały
	if err := registry.CloseAll(); err != nil {
		logger.Warn("errors closing tabs on shutdown", "err", err)
	}
	channels.CloseAll()

	if runErr != nil {
		return fmt.Errorf("program failed: %v", runErr)
	}
	return nil
}

// programRef pozwala fabryce sesji wysyłać zdarzenia do programu,
// który powstaje później niż fabryka
type programRef struct {
	p *tea.Program
}

func (r *programRef) set(p *tea.Program) { r.p = p }

func (r *programRef) send(msg tea.Msg) {
	if r.p != nil {
		r.p.Send(msg)
	}
}

// sessionFactory składa sesję dla nowej karty: połączenie z kanałem
// dobranym do transportu hosta, powierzchnia na viewport i schowek
// systemowy. Zdarzenia sesji wracają do pętli programu przez Send.
func sessionFactory(channels *transport.Registry, program *programRef, logger pslog.Logger) tabs.Factory {
	return func(id int, title string, host models.Host) (*session.Session, error) {
		dial := transport.Dialer(transport.NewSSHChannel)
		if host.UsesWebsocket() {
			dial = transport.NewWSChannel
		}

		conn := transport.NewConn(host, dial, channels, logger)

		surf := surface.NewAdapter(surface.NewViewportRenderer())
		// W TUI pikselem jest komórka terminala
		surf.Attach(surface.FontMetrics{CellWidth: 1, CellHeight: 1})

		notify := func(ev transport.Event) {
			program.send(messages.SessionEventMsg{SessionID: id, Event: ev})
		}
		return session.New(id, title, host, conn, surf, session.SystemClipboard{}, logger, notify), nil
	}
}

// readMasterPassword pyta o hasło główne gdy stdin jest terminalem
func readMasterPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return os.Getenv("SSHMUX_MASTER_KEY"), nil
	}

	fmt.Print("Master password (enter for none): ")
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %v", err)
	}
	return string(raw), nil
}

// internal/transport/conn.go

package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	apperr "sshmux/internal/error"
	"sshmux/internal/models"
)

// State reprezentuje stan maszyny stanów połączenia
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingAuth
	StateStreaming
	StateStale
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting-auth"
	case StateStreaming:
		return "streaming"
	case StateStale:
		return "stale"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Timings grupuje interwały czasowe połączenia. Testy mogą je skrócić,
// a kanały o innej charakterystyce dostroić.
type Timings struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	ResizeDebounce    time.Duration
	DialTimeout       time.Duration
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	MaxRetries        int
}

func DefaultTimings() Timings {
	return Timings{
		HeartbeatInterval: 3 * time.Second,
		StaleAfter:        15 * time.Second,
		ResizeDebounce:    100 * time.Millisecond,
		DialTimeout:       10 * time.Second,
		RetryBaseDelay:    500 * time.Millisecond,
		RetryMaxDelay:     8 * time.Second,
		MaxRetries:        5,
	}
}

// ErrNotStreaming zgłaszany przy próbie wysłania wejścia poza stanem Streaming
var ErrNotStreaming = errors.New("connection is not streaming")

// Conn jest ponawiającym połączeniem logicznym do jednego zdalnego
// hosta. Stan zmieniają wyłącznie jego własne procedury: pętla odczytu,
// watchdog i jawne wywołania Open/SubmitCredentials/Close.
type Conn struct {
	id      string
	dial    Dialer
	reg     *Registry
	log     pslog.Logger
	timings Timings

	mu           sync.Mutex
	host         models.Host // kopia robocza, patchowana przez SubmitCredentials
	state        State
	ch           Channel
	gen          int // generacja kanału; procedury starszej generacji są ignorowane
	cols, rows   int
	sentCols     int
	sentRows     int
	lastPongAt   time.Time
	retryCount   int
	authPrompted bool // najwyżej jeden prompt na próbę połączenia
	staleHandled bool // najwyżej jedno przejście w Stale na okno
	wanted       bool // reconnect w locie sprawdza czy sesja wciąż żyje
	watchdogOn   bool
	lineTerm     string
	resizeTimer  *time.Timer
	retryTimer   *time.Timer

	events       chan Event
	stopWatchdog chan struct{}
	stopOnce     sync.Once
}

// NewConn tworzy nieotwarte połączenie dla hosta. Rejestr kanałów
// należy do kontekstu aplikacji i jest przekazywany jawnie.
func NewConn(host models.Host, dial Dialer, reg *Registry, log pslog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:           id,
		dial:         dial,
		reg:          reg,
		log:          log.With("conn", id),
		timings:      DefaultTimings(),
		host:         host,
		state:        StateIdle,
		cols:         80,
		rows:         24,
		lineTerm:     "\n",
		events:       make(chan Event, 256),
		stopWatchdog: make(chan struct{}),
	}
}

// SetTimings nadpisuje interwały; tylko przed Open
func (c *Conn) SetTimings(t Timings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings = t
}

func (c *Conn) ID() string { return c.id }

// Events zwraca kanał zdarzeń połączenia. Zdarzenia są dostarczane w
// kolejności powstania; EventClosed jest ostatnim.
func (c *Conn) Events() <-chan Event { return c.events }

// State zwraca bieżący stan maszyny stanów
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LineTerminator zwraca zakończenie linii bieżącego kanału
func (c *Conn) LineTerminator() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lineTerm
}

// Open uruchamia maszynę stanów: Idle -> Connecting
func (c *Conn) Open() error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot open connection in state %s", state)
	}
	c.wanted = true
	c.retryCount = 0
	gen := c.beginAttemptLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventState, State: StateConnecting})
	go c.connect(gen)
	return nil
}

// beginAttemptLocked przygotowuje nową próbę połączenia: flagi promptu
// i staleness są resetowane deterministycznie przy każdym wejściu w
// Connecting, a generacja kanału rośnie.
func (c *Conn) beginAttemptLocked() int {
	c.state = StateConnecting
	c.authPrompted = false
	c.staleHandled = false
	c.gen++
	return c.gen
}

func (c *Conn) connect(gen int) {
	c.mu.Lock()
	if !c.wanted || gen != c.gen {
		c.mu.Unlock()
		return
	}
	host := c.host
	dialTimeout := c.timings.DialTimeout
	c.mu.Unlock()

	ch := c.dial(host)
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	err := ch.Open(ctx)
	cancel()
	if err != nil {
		_ = ch.Close()
		c.channelFailed(gen, apperr.New(apperr.ConnectionError, "failed to open channel", err))
		return
	}

	c.mu.Lock()
	if !c.wanted || gen != c.gen {
		c.mu.Unlock()
		_ = ch.Close()
		return
	}
	c.ch = ch
	c.lineTerm = ch.LineTerminator()
	c.state = StateAwaitingAuth
	c.mu.Unlock()

	c.reg.Put(c.id, ch)
	c.emit(Event{Type: EventState, State: StateAwaitingAuth})

	go c.readLoop(ch, gen)
	c.tryAuthenticate(gen)
}

// tryAuthenticate wysyła wiadomość connect jeśli host ma komplet danych
// uwierzytelniających; w przeciwnym razie prosi o nie (raz na próbę)
func (c *Conn) tryAuthenticate(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateAwaitingAuth {
		c.mu.Unlock()
		return
	}
	if !c.host.HasCredentials() {
		prompt := !c.authPrompted
		c.authPrompted = true
		c.mu.Unlock()
		if prompt {
			c.emit(Event{Type: EventNeedCredentials})
		}
		return
	}
	host := c.host
	cols, rows := c.cols, c.rows
	ch := c.ch
	c.mu.Unlock()

	secret := host.Secret
	if host.AuthMethod == models.AuthKey {
		secret = host.KeyData
	}
	err := ch.Send(Message{
		Type:       MsgConnect,
		Cols:       cols,
		Rows:       rows,
		IP:         host.IP,
		User:       host.Login,
		Port:       host.Port,
		AuthMethod: host.AuthMethod.String(),
		Secret:     secret,
	})
	if err != nil {
		if apperr.Is(err, apperr.AuthenticationError) {
			// Błędy uwierzytelnienia nie są ponawiane automatycznie
			c.log.Warn("authentication rejected", "host", host.IP, "err", err)
			c.promptCredentials(gen)
			return
		}
		c.channelFailed(gen, err)
		return
	}

	c.enterStreaming(gen, cols, rows)
}

func (c *Conn) enterStreaming(gen int, cols, rows int) {
	c.mu.Lock()
	if gen != c.gen || !c.wanted {
		c.mu.Unlock()
		return
	}
	c.state = StateStreaming
	c.lastPongAt = time.Now()
	c.staleHandled = false
	c.retryCount = 0
	c.sentCols, c.sentRows = cols, rows
	startWatchdog := !c.watchdogOn
	c.watchdogOn = true
	c.mu.Unlock()

	c.log.Info("streaming", "host", c.hostIP(), "cols", cols, "rows", rows)
	c.emit(Event{Type: EventState, State: StateStreaming})
	if startWatchdog {
		// Dokładnie jeden watchdog na połączenie, przez cały czas życia
		go c.watchdog()
	}
}

func (c *Conn) readLoop(ch Channel, gen int) {
	for {
		msg, err := ch.Receive()
		if err != nil {
			c.channelFailed(gen, apperr.New(apperr.ConnectionError, "channel closed", err))
			return
		}

		switch msg.Type {
		case MsgData:
			c.mu.Lock()
			dead := gen != c.gen || c.state == StateClosed
			c.mu.Unlock()
			if dead {
				return
			}
			// Bajty dostarczane w kolejności nadejścia
			c.emitData(Event{Type: EventData, Data: msg.Data})

		case MsgPong:
			c.mu.Lock()
			c.lastPongAt = time.Now()
			c.mu.Unlock()

		case MsgPing:
			// Heartbeat zdalnej strony sam w sobie potwierdza żywotność
			// i wymaga odpowiedzi
			c.mu.Lock()
			c.lastPongAt = time.Now()
			c.mu.Unlock()
			_ = ch.Send(Message{Type: MsgPong})

		case MsgResize:
			c.emit(Event{Type: EventRemoteResize, Cols: msg.Cols, Rows: msg.Rows})

		case MsgNoAuthRequired:
			c.promptCredentials(gen)

		case MsgError:
			c.handleRemoteError(ch, gen, msg.Err)
		}
	}
}

// handleRemoteError rozróżnia błędy uwierzytelnienia (prompt, bez
// ponawiania) od błędów transportowych (wymuszone zamknięcie kanału,
// które uruchamia ścieżkę reconnect)
func (c *Conn) handleRemoteError(ch Channel, gen int, errMsg string) {
	lower := strings.ToLower(errMsg)
	if strings.Contains(lower, "auth") || strings.Contains(lower, "permission denied") {
		c.log.Warn("remote auth error", "host", c.hostIP(), "err", errMsg)
		c.promptCredentials(gen)
		return
	}
	c.log.Warn("remote error", "host", c.hostIP(), "err", errMsg)
	_ = ch.Close()
}

// promptCredentials przechodzi w AwaitingAuth i prosi o dane
// uwierzytelniające, najwyżej raz na próbę połączenia
func (c *Conn) promptCredentials(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	changed := c.state != StateAwaitingAuth
	c.state = StateAwaitingAuth
	prompt := !c.authPrompted
	c.authPrompted = true
	c.mu.Unlock()

	if changed {
		c.emit(Event{Type: EventState, State: StateAwaitingAuth})
	}
	if prompt {
		c.emit(Event{Type: EventNeedCredentials})
	}
}

// channelFailed obsługuje błąd kanału: ograniczone ponawianie z
// backoffem, po wyczerpaniu stan Closed i błąd fatalny
func (c *Conn) channelFailed(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.wanted || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.gen++ // unieważnia bieżący kanał i jego pętlę odczytu
	ch := c.ch
	c.ch = nil
	c.retryCount++
	attempt := c.retryCount
	exhausted := attempt > c.timings.MaxRetries
	if exhausted {
		c.state = StateClosed
		c.wanted = false
		if c.resizeTimer != nil {
			c.resizeTimer.Stop()
		}
		if c.retryTimer != nil {
			c.retryTimer.Stop()
		}
	} else {
		c.state = StateReconnecting
	}
	delay := c.backoffLocked(attempt)
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}

	if exhausted {
		c.reg.Remove(c.id)
		c.stopWatchdogChan()
		c.log.Error("connection failed permanently", "host", c.hostIP(), "attempts", attempt-1, "err", err)
		c.emit(Event{Type: EventFatal, Err: err})
		c.emit(Event{Type: EventState, State: StateClosed})
		c.emit(Event{Type: EventClosed})
		return
	}

	c.log.Warn("channel failed, retrying", "host", c.hostIP(), "attempt", attempt, "delay", delay.String(), "err", err)
	c.emit(Event{Type: EventState, State: StateReconnecting})
	c.emit(Event{Type: EventReconnecting, Attempt: attempt, Err: err})

	c.mu.Lock()
	if c.state != StateReconnecting {
		// Zamknięte w międzyczasie
		c.mu.Unlock()
		return
	}
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if !c.wanted || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		next := c.beginAttemptLocked()
		c.mu.Unlock()
		c.emit(Event{Type: EventState, State: StateConnecting})
		c.connect(next)
	})
	c.mu.Unlock()
}

func (c *Conn) backoffLocked(attempt int) time.Duration {
	delay := c.timings.RetryBaseDelay << (attempt - 1)
	if delay > c.timings.RetryMaxDelay {
		delay = c.timings.RetryMaxDelay
	}
	return delay
}

// watchdog wysyła heartbeat co HeartbeatInterval i wymusza reconnect
// gdy brak ponga przekroczy StaleAfter - dokładnie raz na okno
// staleness, nie w kółko podczas trwającego reconnectu
func (c *Conn) watchdog() {
	ticker := time.NewTicker(c.timings.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.state != StateStreaming {
				c.mu.Unlock()
				continue
			}
			if time.Since(c.lastPongAt) > c.timings.StaleAfter && !c.staleHandled {
				c.staleHandled = true
				c.state = StateStale
				c.lastPongAt = time.Now() // reset zegara na nowe okno
				ch := c.ch
				c.mu.Unlock()

				c.log.Warn("connection stale, forcing reconnect", "host", c.hostIP())
				c.emit(Event{Type: EventState, State: StateStale})
				if ch != nil {
					// Pętla odczytu dostanie błąd i wejdzie w Reconnecting
					_ = ch.Close()
				}
				continue
			}
			ch := c.ch
			c.mu.Unlock()
			if ch != nil {
				_ = ch.Send(Message{Type: MsgPing})
			}

		case <-c.stopWatchdog:
			return
		}
	}
}

// RequestResize zapamiętuje nowy rozmiar siatki i wysyła go po
// wygaśnięciu debounce (~100ms). Nowe żądanie anuluje poprzednie,
// więc zawsze wygrywa ostatni rozmiar.
func (c *Conn) RequestResize(cols, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.cols, c.rows = cols, rows
	if c.resizeTimer != nil {
		c.resizeTimer.Stop()
	}
	c.resizeTimer = time.AfterFunc(c.timings.ResizeDebounce, c.flushResize)
}

func (c *Conn) flushResize() {
	c.mu.Lock()
	cols, rows := c.cols, c.rows
	ch := c.ch
	send := c.state == StateStreaming && ch != nil &&
		(cols != c.sentCols || rows != c.sentRows)
	if send {
		c.sentCols, c.sentRows = cols, rows
	}
	c.mu.Unlock()

	if send {
		_ = ch.Send(Message{Type: MsgResize, Cols: cols, Rows: rows})
	}
}

// SendInput przekazuje wejście użytkownika; dozwolone tylko w Streaming
func (c *Conn) SendInput(p []byte) error {
	c.mu.Lock()
	ch := c.ch
	streaming := c.state == StateStreaming && ch != nil
	c.mu.Unlock()

	if !streaming {
		return ErrNotStreaming
	}
	return ch.Send(Message{Type: MsgData, Data: p})
}

// SubmitCredentials patchuje roboczą kopię hosta i ponawia handshake.
// Jeśli kanał jest już otwarty, connect idzie bez zrywania transportu;
// jeśli połączenie jest zamknięte, otwiera je od nowa.
func (c *Conn) SubmitCredentials(secret, keyData string) {
	c.mu.Lock()
	if secret != "" {
		c.host.Secret = secret
		if c.host.AuthMethod == models.AuthNone {
			c.host.AuthMethod = models.AuthPassword
		}
	}
	if keyData != "" {
		c.host.KeyData = keyData
		c.host.AuthMethod = models.AuthKey
	}
	state := c.state
	gen := c.gen
	c.mu.Unlock()

	switch state {
	case StateAwaitingAuth:
		c.authPromptedReset()
		c.tryAuthenticate(gen)
	case StateStreaming:
		// Już po handshake'u - wystarczy ponowić connect na żywym kanale
		c.tryReconnectMessage(gen)
	case StateClosed, StateIdle:
		c.reopen()
	}
}

func (c *Conn) authPromptedReset() {
	c.mu.Lock()
	c.authPrompted = false
	c.mu.Unlock()
}

func (c *Conn) tryReconnectMessage(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.ch == nil {
		c.mu.Unlock()
		return
	}
	host := c.host
	cols, rows := c.cols, c.rows
	ch := c.ch
	c.mu.Unlock()

	secret := host.Secret
	if host.AuthMethod == models.AuthKey {
		secret = host.KeyData
	}
	_ = ch.Send(Message{
		Type:       MsgConnect,
		Cols:       cols,
		Rows:       rows,
		IP:         host.IP,
		User:       host.Login,
		Port:       host.Port,
		AuthMethod: host.AuthMethod.String(),
		Secret:     secret,
	})
}

func (c *Conn) reopen() {
	c.mu.Lock()
	if c.state != StateClosed && c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.wanted = true
	c.retryCount = 0
	gen := c.beginAttemptLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventState, State: StateConnecting})
	go c.connect(gen)
}

// StopWatchdog zatrzymuje watchdog połączenia; idempotentne
func (c *Conn) StopWatchdog() {
	c.stopWatchdogChan()
}

func (c *Conn) stopWatchdogChan() {
	c.stopOnce.Do(func() {
		close(c.stopWatchdog)
	})
}

// Disconnect zamyka kanał i przechodzi w Closed: timery anulowane,
// kanał zwolniony, stan terminalny
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.wanted = false
	c.state = StateClosed
	c.gen++ // unieważnia procedury w locie
	ch := c.ch
	c.ch = nil
	if c.resizeTimer != nil {
		c.resizeTimer.Stop()
		c.resizeTimer = nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.Close()
	}

	c.emit(Event{Type: EventState, State: StateClosed})
	c.emit(Event{Type: EventClosed})
	return err
}

// Release usuwa wpis połączenia z rejestru kanałów
func (c *Conn) Release() {
	c.reg.Remove(c.id)
}

// Close wykonuje pełne zamknięcie: watchdog, kanał, rejestr
func (c *Conn) Close() error {
	c.StopWatchdog()
	err := c.Disconnect()
	c.Release()
	return err
}

func (c *Conn) hostIP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host.IP
}

// Channel zwraca bieżący kanał transportowy; nil po zamknięciu
func (c *Conn) Channel() Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch
}

// emit dostarcza zdarzenie bez blokowania; przy przepełnionym buforze
// zdarzenie sterujące jest porzucane z wpisem w logu. Wyjątkiem jest
// EventClosed - konsument czyta do niego, więc musi dotrzeć zawsze.
func (c *Conn) emit(ev Event) {
	if ev.Type == EventClosed {
		c.events <- ev
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping", "event", ev.Type.String())
	}
}

// emitData dostarcza dane wyjściowe blokująco - kolejność i komplet
// bajtów mają pierwszeństwo, a konsument czyta do EventClosed
func (c *Conn) emitData(ev Event) {
	c.events <- ev
}

// internal/transport/ssh_channel.go

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"sshmux/internal/config"
	apperr "sshmux/internal/error"
	"sshmux/internal/models"
)

const knownHostsFileName = "known_hosts"

// HostKeyVerificationRequired zgłaszany gdy klucz hosta nie zgadza się
// z wpisem w known_hosts. Nowe hosty są akceptowane automatycznie
// (trust on first use); zmieniony klucz nigdy.
type HostKeyVerificationRequired struct {
	IP   string
	Port string
}

func (e *HostKeyVerificationRequired) Error() string {
	return fmt.Sprintf("host key verification required for [%s]:%s", e.IP, e.Port)
}

// getAppKnownHostsPath zwraca ścieżkę do naszego pliku known_hosts
func getAppKnownHostsPath() (string, error) {
	configPath, err := config.GetDefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("could not get config directory: %v", err)
	}
	sshDir := filepath.Join(filepath.Dir(configPath), "ssh")
	return filepath.Join(sshDir, knownHostsFileName), nil
}

// SSHChannel realizuje Channel na golang.org/x/crypto/ssh: wiadomości
// logiczne są mapowane na natywne operacje protokołu. Open nawiązuje
// tylko połączenie TCP - handshake SSH i uwierzytelnienie wykonuje
// dopiero MsgConnect, bo dopiero wtedy znane są dane uwierzytelniające.
type SSHChannel struct {
	host           models.Host
	knownHostsPath string

	mu      sync.Mutex
	tcpConn net.Conn
	client  *ssh.Client
	sess    *ssh.Session
	stdin   sshWriter
	err     error

	incoming  chan Message
	done      chan struct{}
	closeOnce sync.Once
}

type sshWriter interface {
	Write(p []byte) (int, error)
}

// NewSSHChannel tworzy kanał SSH dla hosta; Dialer dla Conn
func NewSSHChannel(host models.Host) Channel {
	path, err := getAppKnownHostsPath()
	if err != nil {
		// Fallback do katalogu bieżącego - weryfikacja dalej działa
		path = knownHostsFileName
	}
	return NewSSHChannelWithKnownHosts(host, path)
}

// NewSSHChannelWithKnownHosts pozwala wskazać plik known_hosts (testy)
func NewSSHChannelWithKnownHosts(host models.Host, knownHostsPath string) Channel {
	return &SSHChannel{
		host:           host,
		knownHostsPath: knownHostsPath,
		incoming:       make(chan Message, 64),
		done:           make(chan struct{}),
	}
}

// Open nawiązuje połączenie TCP z hostem
func (c *SSHChannel) Open(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.host.Addr())
	if err != nil {
		return fmt.Errorf("failed to dial %s: %v", c.host.Addr(), err)
	}

	c.mu.Lock()
	c.tcpConn = conn
	c.mu.Unlock()
	return nil
}

// Send mapuje wiadomość logiczną na operację SSH
func (c *SSHChannel) Send(msg Message) error {
	switch msg.Type {
	case MsgConnect:
		return c.handshake(msg)

	case MsgData:
		c.mu.Lock()
		stdin := c.stdin
		c.mu.Unlock()
		if stdin == nil {
			return errors.New("ssh session not established")
		}
		if _, err := stdin.Write(msg.Data); err != nil {
			return fmt.Errorf("failed to write to remote stdin: %v", err)
		}
		return nil

	case MsgResize:
		c.mu.Lock()
		sess := c.sess
		c.mu.Unlock()
		if sess == nil {
			return errors.New("ssh session not established")
		}
		if err := sess.WindowChange(msg.Rows, msg.Cols); err != nil {
			return fmt.Errorf("failed to change window size: %v", err)
		}
		return nil

	case MsgPing:
		c.mu.Lock()
		client := c.client
		c.mu.Unlock()
		if client == nil {
			return errors.New("ssh session not established")
		}
		// Keepalive z żądaniem odpowiedzi; pong syntetyzowany po
		// potwierdzeniu, żeby watchdog widział jednolity protokół
		go func() {
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err == nil {
				c.deliver(Message{Type: MsgPong})
			}
		}()
		return nil

	case MsgPong:
		// SSH nie przysyła pingów aplikacyjnych - nie ma na co odpowiadać
		return nil

	default:
		return fmt.Errorf("unsupported message type: %s", msg.Type)
	}
}

// handshake wykonuje pełny handshake SSH na otwartym połączeniu TCP:
// uwierzytelnienie, sesja, PTY, powłoka i pompa wyjścia
func (c *SSHChannel) handshake(msg Message) error {
	c.mu.Lock()
	tcpConn := c.tcpConn
	already := c.client != nil
	c.mu.Unlock()

	if tcpConn == nil {
		return errors.New("channel not open")
	}
	if already {
		// Ponowny connect na żywym kanale - nic do zrobienia
		return nil
	}

	authMethod, err := buildAuthMethod(msg)
	if err != nil {
		return apperr.New(apperr.AuthenticationError, "invalid credentials", err)
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("failed to create host key callback: %v", err)
	}

	cfg := &ssh.ClientConfig{
		User:            msg.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, c.host.Addr(), cfg)
	if err != nil {
		if isAuthFailure(err) {
			return apperr.New(apperr.AuthenticationError, "authentication failed", err)
		}
		return apperr.New(apperr.ConnectionError, "ssh handshake failed", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to create session: %v", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
		ssh.VINTR:         3,  // Ctrl+C
		ssh.VQUIT:         28, // Ctrl+\
		ssh.VERASE:        127,
		ssh.VKILL:         21, // Ctrl+U
		ssh.VEOF:          4,  // Ctrl+D
		ssh.VWERASE:       23, // Ctrl+W
		ssh.VLNEXT:        22, // Ctrl+V
		ssh.VSUSP:         26, // Ctrl+Z
	}
	if err := sess.RequestPty("xterm-256color", msg.Rows, msg.Cols, modes); err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("failed to request PTY: %v", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("failed to get stdin pipe: %v", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("failed to get stdout pipe: %v", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("failed to get stderr pipe: %v", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return fmt.Errorf("failed to start shell: %v", err)
	}

	c.mu.Lock()
	c.client = client
	c.sess = sess
	c.stdin = stdin
	c.mu.Unlock()

	go c.pump(stdout)
	go c.pump(stderr)
	go func() {
		// Koniec powłoki kończy kanał
		err := sess.Wait()
		if err == nil {
			err = errors.New("remote shell exited")
		}
		c.fail(err)
	}()

	return nil
}

func buildAuthMethod(msg Message) (ssh.AuthMethod, error) {
	if msg.AuthMethod == models.AuthKey.String() {
		signer, err := ssh.ParsePrivateKey([]byte(msg.Secret))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %v", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	if msg.Secret == "" {
		return nil, errors.New("empty password")
	}
	return ssh.Password(msg.Secret), nil
}

func isAuthFailure(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unable to authenticate") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "no supported methods remain")
}

// hostKeyCallback weryfikuje klucz hosta przez known_hosts. Host bez
// wpisu jest dopisywany przy pierwszym połączeniu; niezgodny klucz
// zwraca HostKeyVerificationRequired.
func (c *SSHChannel) hostKeyCallback() (ssh.HostKeyCallback, error) {
	dir := filepath.Dir(c.knownHostsPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %v", dir, err)
	}
	file, err := os.OpenFile(c.knownHostsPath, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open known_hosts: %v", err)
	}
	file.Close()

	verify, err := knownhosts.New(c.knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %v", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			// Nieznany host - zapisujemy klucz przy pierwszym użyciu
			return c.appendKnownHost(hostname, key)
		}
		return &HostKeyVerificationRequired{IP: c.host.IP, Port: c.host.Port}
	}, nil
}

func (c *SSHChannel) appendKnownHost(hostname string, key ssh.PublicKey) error {
	file, err := os.OpenFile(c.knownHostsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts for writing: %v", err)
	}
	defer file.Close()

	line := knownhosts.Line([]string{hostname}, key)
	if _, err := file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %v", err)
	}
	return nil
}

// pump przepisuje wyjście zdalnego terminala na wiadomości MsgData
func (c *SSHChannel) pump(r interface{ Read(p []byte) (int, error) }) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !c.deliver(Message{Type: MsgData, Data: data}) {
				return
			}
		}
		if err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *SSHChannel) deliver(msg Message) bool {
	select {
	case c.incoming <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *SSHChannel) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Receive blokuje do nadejścia wiadomości albo zamknięcia kanału
func (c *SSHChannel) Receive() (Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.done:
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		if err == nil {
			err = errors.New("channel closed")
		}
		return Message{}, err
	}
}

// LineTerminator - PTY oczekuje CR jako końca linii
func (c *SSHChannel) LineTerminator() string {
	return "\r"
}

// Client zwraca klienta SSH dla operacji pomocniczych (SFTP/SCP);
// nil dopóki handshake nie przeszedł
func (c *SSHChannel) Client() *ssh.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// Close zwalnia kanał; bezpieczne wielokrotne wywołanie
func (c *SSHChannel) Close() error {
	c.fail(errors.New("channel closed"))

	c.mu.Lock()
	sess := c.sess
	client := c.client
	tcpConn := c.tcpConn
	c.sess = nil
	c.client = nil
	c.tcpConn = nil
	c.mu.Unlock()

	var errs []string
	if sess != nil {
		if err := sess.Close(); err != nil && err.Error() != "EOF" {
			errs = append(errs, fmt.Sprintf("session close: %v", err))
		}
	}
	if client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("client close: %v", err))
		}
	} else if tcpConn != nil {
		if err := tcpConn.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("tcp close: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %s", strings.Join(errs, "; "))
	}
	return nil
}

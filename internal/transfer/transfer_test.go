// internal/transfer/transfer_test.go

package transfer

import (
	"fmt"
	"net"
	"testing"

	"golang.org/x/crypto/ssh"
)

// deadSSHConn udaje połączenie SSH, na którym nie da się otworzyć
// żadnego kanału - podsystem sftp jest więc niedostępny
type deadSSHConn struct{}

func (deadSSHConn) User() string          { return "admin" }
func (deadSSHConn) SessionID() []byte     { return nil }
func (deadSSHConn) ClientVersion() []byte { return []byte("SSH-2.0-test") }
func (deadSSHConn) ServerVersion() []byte { return []byte("SSH-2.0-test") }
func (deadSSHConn) RemoteAddr() net.Addr  { return &net.TCPAddr{} }
func (deadSSHConn) LocalAddr() net.Addr   { return &net.TCPAddr{} }
func (deadSSHConn) Close() error          { return nil }
func (deadSSHConn) Wait() error           { return fmt.Errorf("connection closed") }

func (deadSSHConn) SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	return false, nil, fmt.Errorf("connection closed")
}

func (deadSSHConn) OpenChannel(name string, payload []byte) (ssh.Channel, <-chan *ssh.Request, error) {
	return nil, nil, fmt.Errorf("connection closed")
}

func deadClient() *ssh.Client {
	chans := make(chan ssh.NewChannel)
	reqs := make(chan *ssh.Request)
	close(chans)
	close(reqs)
	return ssh.NewClient(deadSSHConn{}, chans, reqs)
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil ssh client")
	}
}

func TestNewFallsBackToSCPWithoutSFTP(t *testing.T) {
	ft, err := New(deadClient())
	if err != nil {
		t.Fatalf("New() must not fail when sftp is unavailable: %v", err)
	}
	defer ft.Close()

	if !ft.useSCP {
		t.Error("expected SCP fallback when the sftp subsystem cannot be opened")
	}
	if ft.sftpClient != nil {
		t.Error("sftp client must stay nil in SCP mode")
	}
}

func TestDirectoryOperationsRequireSFTP(t *testing.T) {
	ft, err := New(deadClient())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer ft.Close()

	if _, err := ft.ListRemoteFiles("/tmp"); err == nil {
		t.Error("remote listing must fail in SCP mode")
	}
	if err := ft.CreateRemoteDirectory("/tmp/x"); err == nil {
		t.Error("mkdir must fail in SCP mode")
	}
	if err := ft.RemoveRemoteFile("/tmp/x"); err == nil {
		t.Error("remove must fail in SCP mode")
	}
	if err := ft.RenameRemoteFile("/tmp/a", "/tmp/b"); err == nil {
		t.Error("rename must fail in SCP mode")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ft, err := New(deadClient())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := ft.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := ft.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}

// internal/transfer/transfer.go

// Pakiet transfer przenosi pliki po żywym połączeniu sesji: SFTP jako
// kanał podstawowy, SCP jako zapasowy gdy serwer nie udostępnia
// podsystemu sftp.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Progress reprezentuje postęp transferu pliku
type Progress struct {
	FileName         string
	TotalBytes       int64
	TransferredBytes int64
	StartTime        time.Time
}

// FileTransfer wykonuje operacje plikowe na kliencie SSH istniejącej
// sesji - bez osobnego łączenia i uwierzytelniania
type FileTransfer struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	useSCP     bool
}

// New otwiera warstwę transferu na żywym kliencie SSH. Brak
// podsystemu sftp nie jest błędem - transfery przechodzą na SCP,
// a operacje katalogowe stają się niedostępne.
func New(client *ssh.Client) (*FileTransfer, error) {
	if client == nil {
		return nil, fmt.Errorf("session has no established ssh client")
	}

	ft := &FileTransfer{sshClient: client}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		ft.useSCP = true
		return ft, nil
	}
	ft.sftpClient = sftpClient
	return ft, nil
}

// Close zamyka warstwę transferu; klient SSH należy do sesji i
// pozostaje otwarty
func (ft *FileTransfer) Close() error {
	if ft.sftpClient != nil {
		if err := ft.sftpClient.Close(); err != nil {
			return fmt.Errorf("error closing SFTP client: %v", err)
		}
		ft.sftpClient = nil
	}
	return nil
}

// ListLocalFiles zwraca listę plików w lokalnym katalogu
func (ft *FileTransfer) ListLocalFiles(path string) ([]os.FileInfo, error) {
	dir, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	return dir.Readdir(-1)
}

// ListRemoteFiles zwraca listę plików w zdalnym katalogu
func (ft *FileTransfer) ListRemoteFiles(path string) ([]os.FileInfo, error) {
	if ft.sftpClient == nil {
		return nil, fmt.Errorf("remote listing requires the sftp subsystem")
	}
	return ft.sftpClient.ReadDir(path)
}

// CreateRemoteDirectory tworzy katalog na zdalnym serwerze
func (ft *FileTransfer) CreateRemoteDirectory(path string) error {
	if ft.sftpClient == nil {
		return fmt.Errorf("directory operations require the sftp subsystem")
	}
	return ft.sftpClient.MkdirAll(path)
}

// RemoveRemoteFile usuwa plik lub katalog na zdalnym serwerze
func (ft *FileTransfer) RemoveRemoteFile(path string) error {
	if ft.sftpClient == nil {
		return fmt.Errorf("remove requires the sftp subsystem")
	}

	// Najpierw spróbuj usunąć jako plik
	if err := ft.sftpClient.Remove(path); err == nil {
		return nil
	}
	return ft.sftpClient.RemoveDirectory(path)
}

// RenameRemoteFile zmienia nazwę pliku na zdalnym serwerze
func (ft *FileTransfer) RenameRemoteFile(oldPath, newPath string) error {
	if ft.sftpClient == nil {
		return fmt.Errorf("rename requires the sftp subsystem")
	}
	return ft.sftpClient.Rename(oldPath, newPath)
}

// Upload wysyła plik lokalny na zdalny serwer
func (ft *FileTransfer) Upload(ctx context.Context, localPath, remotePath string, progressChan chan<- Progress) error {
	if ft.useSCP {
		return ft.uploadSCP(ctx, localPath, remotePath)
	}
	return ft.uploadSFTP(ctx, localPath, remotePath, progressChan)
}

// Download pobiera plik zdalny na dysk lokalny
func (ft *FileTransfer) Download(ctx context.Context, remotePath, localPath string, progressChan chan<- Progress) error {
	if ft.useSCP {
		return ft.downloadSCP(ctx, remotePath, localPath)
	}
	return ft.downloadSFTP(ctx, remotePath, localPath, progressChan)
}

func (ft *FileTransfer) uploadSFTP(ctx context.Context, localPath, remotePath string, progressChan chan<- Progress) error {
	srcFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %v", err)
	}
	defer srcFile.Close()

	dstFile, err := ft.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %v", err)
	}
	defer dstFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %v", err)
	}

	if err := ft.copyWithProgress(ctx, dstFile, srcFile, Progress{
		FileName:   filepath.Base(localPath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}, progressChan); err != nil {
		return err
	}

	if err := dstFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync remote file: %v", err)
	}
	return nil
}

func (ft *FileTransfer) downloadSFTP(ctx context.Context, remotePath, localPath string, progressChan chan<- Progress) error {
	srcFile, err := ft.sftpClient.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %v", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %v", err)
	}
	defer dstFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %v", err)
	}

	return ft.copyWithProgress(ctx, dstFile, srcFile, Progress{
		FileName:   filepath.Base(remotePath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}, progressChan)
}

// copyWithProgress kopiuje strumień blokami 128 KB, raportując postęp
// bez blokowania gdy odbiorca nie nadąża
func (ft *FileTransfer) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, progress Progress, progressChan chan<- Progress) error {
	buf := make([]byte, 128*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := src.Read(buf)
		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			if writeErr != nil {
				return fmt.Errorf("error writing file: %v", writeErr)
			}
			if written != n {
				return fmt.Errorf("incomplete write: wrote %d bytes instead of %d", written, n)
			}

			progress.TransferredBytes += int64(n)
			if progressChan != nil {
				select {
				case progressChan <- progress:
				default:
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading file: %v", err)
		}
	}

	if progressChan != nil {
		select {
		case progressChan <- progress:
		default:
		}
	}
	return nil
}

func (ft *FileTransfer) uploadSCP(ctx context.Context, localPath, remotePath string) error {
	client, err := scp.NewClientBySSH(ft.sshClient)
	if err != nil {
		return fmt.Errorf("failed to create SCP client: %v", err)
	}
	defer client.Close()

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %v", err)
	}
	defer file.Close()

	if err := client.CopyFromFile(ctx, *file, remotePath, "0644"); err != nil {
		return fmt.Errorf("scp upload failed: %v", err)
	}
	return nil
}

func (ft *FileTransfer) downloadSCP(ctx context.Context, remotePath, localPath string) error {
	client, err := scp.NewClientBySSH(ft.sshClient)
	if err != nil {
		return fmt.Errorf("failed to create SCP client: %v", err)
	}
	defer client.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %v", err)
	}
	defer file.Close()

	if err := client.CopyFromRemote(ctx, file, remotePath); err != nil {
		return fmt.Errorf("scp download failed: %v", err)
	}
	return nil
}

// internal/logging/logging.go

package logging

import (
	"fmt"
	"io"
	"os"

	"pkt.systems/pslog"
)

// Setup otwiera plik logu i zwraca logger strukturalny. TUI zajmuje
// stdout/stderr, więc log musi trafiać do pliku.
func Setup(path string) (pslog.Logger, func() error, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %v", err)
	}

	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(file),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured}),
	)

	return logger, file.Close, nil
}

// Discard zwraca logger odrzucający wszystko - do testów i trybu cichego
func Discard() pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(io.Discard),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured}),
	)
}

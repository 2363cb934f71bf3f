// internal/config/config.go

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sshmux/internal/crypto"
	"sshmux/internal/models"
)

const (
	DefaultConfigFileName = "ssh_hosts.json"
	DefaultConfigDir      = ".config/sshmux"
	DefaultLogFileName    = "sshmux.log"
	DefaultFilePerms      = 0600
)

// Manager jest katalogiem hostów: wczytuje i zapisuje plik konfiguracji
// oraz szyfruje sekrety hostów przed zapisem na dysk.
type Manager struct {
	configPath string
	config     *models.Config
	cipher     *crypto.Cipher
}

// NewManager tworzy nowego menedżera konfiguracji
func NewManager(configPath string) *Manager {
	if configPath == "" {
		defaultPath, err := GetDefaultConfigPath()
		if err == nil {
			configPath = defaultPath
		} else {
			// Fallback do bieżącego katalogu jeśli nie można uzyskać ścieżki domowej
			configPath = DefaultConfigFileName
		}
	}

	return &Manager{
		configPath: configPath,
		config:     &models.Config{},
	}
}

// SetCipher ustawia szyfr używany do sekretów hostów
func (m *Manager) SetCipher(cipher *crypto.Cipher) {
	m.cipher = cipher
}

// GetConfigPath zwraca ścieżkę pliku konfiguracji
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Load wczytuje konfigurację z pliku
func (m *Manager) Load() error {
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Jeśli plik nie istnieje, tworzymy nową pustą konfigurację
			m.config = &models.Config{
				Hosts: make([]models.Host, 0),
			}
			return m.Save()
		}
		return fmt.Errorf("failed to read config file: %v", err)
	}

	if err := json.Unmarshal(data, m.config); err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}

	return nil
}

// Save zapisuje konfigurację do pliku
func (m *Manager) Save() error {
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := json.MarshalIndent(m.config, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	if err := os.WriteFile(m.configPath, data, DefaultFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}

// GetHosts zwraca listę wszystkich hostów
func (m *Manager) GetHosts() []models.Host {
	return m.config.Hosts
}

// AddHost dodaje nowego hosta, szyfrując jego sekrety jeśli ustawiono szyfr
func (m *Manager) AddHost(host models.Host) error {
	sealed, err := m.sealSecrets(host)
	if err != nil {
		return err
	}
	m.config.Hosts = append(m.config.Hosts, sealed)
	return nil
}

// UpdateHost aktualizuje istniejącego hosta
func (m *Manager) UpdateHost(index int, host models.Host) error {
	if index < 0 || index >= len(m.config.Hosts) {
		return errors.New("invalid host index")
	}
	sealed, err := m.sealSecrets(host)
	if err != nil {
		return err
	}
	m.config.Hosts[index] = sealed
	return nil
}

// DeleteHost usuwa hosta
func (m *Manager) DeleteHost(index int) error {
	if index < 0 || index >= len(m.config.Hosts) {
		return errors.New("invalid host index")
	}
	m.config.Hosts = append(m.config.Hosts[:index], m.config.Hosts[index+1:]...)
	return nil
}

// FindHostByName szuka hosta po nazwie wyświetlanej
func (m *Manager) FindHostByName(name string) (models.Host, int, error) {
	for i, host := range m.config.Hosts {
		if host.DisplayName == name {
			return host, i, nil
		}
	}
	return models.Host{}, -1, errors.New("host not found")
}

// OpenHost zwraca kopię hosta z odszyfrowanymi sekretami, gotową do
// przekazania sesji terminala. Oryginał w katalogu pozostaje zaszyfrowany.
func (m *Manager) OpenHost(index int) (models.Host, error) {
	if index < 0 || index >= len(m.config.Hosts) {
		return models.Host{}, errors.New("invalid host index")
	}
	host := m.config.Hosts[index]
	if m.cipher == nil {
		return host, nil
	}

	if host.Secret != "" {
		plain, err := m.cipher.Decrypt(host.Secret)
		if err != nil {
			return models.Host{}, fmt.Errorf("failed to decrypt host secret: %v", err)
		}
		host.Secret = plain
	}
	if host.KeyData != "" {
		plain, err := m.cipher.Decrypt(host.KeyData)
		if err != nil {
			return models.Host{}, fmt.Errorf("failed to decrypt host key: %v", err)
		}
		host.KeyData = plain
	}
	return host, nil
}

// sealSecrets szyfruje sekrety hosta przed zapisem do katalogu
func (m *Manager) sealSecrets(host models.Host) (models.Host, error) {
	if m.cipher == nil {
		return host, nil
	}
	if host.Secret != "" {
		enc, err := m.cipher.Encrypt(host.Secret)
		if err != nil {
			return models.Host{}, fmt.Errorf("failed to encrypt host secret: %v", err)
		}
		host.Secret = enc
	}
	if host.KeyData != "" {
		enc, err := m.cipher.Encrypt(host.KeyData)
		if err != nil {
			return models.Host{}, fmt.Errorf("failed to encrypt host key: %v", err)
		}
		host.KeyData = enc
	}
	return host, nil
}

func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %v", err)
	}

	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory: %v", err)
	}

	return filepath.Join(configDir, DefaultConfigFileName), nil
}

// GetDefaultLogPath zwraca ścieżkę pliku logu obok pliku konfiguracji
func GetDefaultLogPath() (string, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(configPath), DefaultLogFileName), nil
}

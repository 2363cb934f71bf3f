// internal/config/config_test.go

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sshmux/internal/crypto"
	"sshmux/internal/models"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	return NewManager(filepath.Join(dir, "ssh_hosts.json"))
}

func testHost() models.Host {
	return models.Host{
		DisplayName: "web-01",
		Login:       "admin",
		IP:          "10.0.0.1",
		Port:        "22",
		AuthMethod:  models.AuthPassword,
		Secret:      "s3cret",
	}
}

func TestLoadCreatesEmptyConfig(t *testing.T) {
	m := testManager(t)

	if err := m.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(m.GetHosts()) != 0 {
		t.Errorf("expected empty host list, got %d", len(m.GetHosts()))
	}
	if _, err := os.Stat(m.GetConfigPath()); err != nil {
		t.Errorf("config file should exist after first load: %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	m := testManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := m.AddHost(testHost()); err != nil {
		t.Fatalf("AddHost() failed: %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	fresh := NewManager(m.GetConfigPath())
	if err := fresh.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	hosts := fresh.GetHosts()
	if len(hosts) != 1 {
		t.Fatalf("expected 1 host after reload, got %d", len(hosts))
	}
	if hosts[0].DisplayName != "web-01" || hosts[0].Login != "admin" {
		t.Errorf("host fields lost on reload: %+v", hosts[0])
	}
}

func TestSecretsEncryptedAtRest(t *testing.T) {
	m := testManager(t)
	m.SetCipher(crypto.NewCipher("master-password"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := m.AddHost(testHost()); err != nil {
		t.Fatalf("AddHost() failed: %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	raw, err := os.ReadFile(m.GetConfigPath())
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if strings.Contains(string(raw), "s3cret") {
		t.Error("plaintext secret must not appear in the config file")
	}

	// OpenHost zwraca kopię z odszyfrowanym sekretem
	host, err := m.OpenHost(0)
	if err != nil {
		t.Fatalf("OpenHost() failed: %v", err)
	}
	if host.Secret != "s3cret" {
		t.Errorf("expected decrypted secret, got %q", host.Secret)
	}

	// Oryginał w katalogu pozostaje zaszyfrowany
	if m.GetHosts()[0].Secret == "s3cret" {
		t.Error("catalog entry must stay encrypted after OpenHost")
	}
}

func TestUpdateAndDeleteHost(t *testing.T) {
	m := testManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := m.AddHost(testHost()); err != nil {
		t.Fatalf("AddHost() failed: %v", err)
	}

	updated := testHost()
	updated.DisplayName = "web-02"
	if err := m.UpdateHost(0, updated); err != nil {
		t.Fatalf("UpdateHost() failed: %v", err)
	}
	if m.GetHosts()[0].DisplayName != "web-02" {
		t.Errorf("update not applied")
	}

	if err := m.UpdateHost(5, updated); err == nil {
		t.Error("expected error for invalid index")
	}
	if err := m.DeleteHost(0); err != nil {
		t.Fatalf("DeleteHost() failed: %v", err)
	}
	if len(m.GetHosts()) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(m.GetHosts()))
	}
}

func TestFindHostByName(t *testing.T) {
	m := testManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := m.AddHost(testHost()); err != nil {
		t.Fatalf("AddHost() failed: %v", err)
	}

	host, idx, err := m.FindHostByName("web-01")
	if err != nil || idx != 0 || host.IP != "10.0.0.1" {
		t.Errorf("FindHostByName failed: host=%+v idx=%d err=%v", host, idx, err)
	}
	if _, _, err := m.FindHostByName("missing"); err == nil {
		t.Error("expected error for unknown host")
	}
}

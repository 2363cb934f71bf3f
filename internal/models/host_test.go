// internal/models/host_test.go

package models

import "testing"

func TestAddrDefaultsPort(t *testing.T) {
	h := Host{IP: "10.0.0.1"}
	if got := h.Addr(); got != "10.0.0.1:22" {
		t.Errorf("Addr() = %q, want %q", got, "10.0.0.1:22")
	}
	h.Port = "2222"
	if got := h.Addr(); got != "10.0.0.1:2222" {
		t.Errorf("Addr() = %q, want %q", got, "10.0.0.1:2222")
	}
}

func TestTitleBase(t *testing.T) {
	h := Host{IP: "10.0.0.1"}
	if got := h.TitleBase(); got != "10.0.0.1" {
		t.Errorf("TitleBase() = %q, want ip", got)
	}
	h.DisplayName = "web-01"
	if got := h.TitleBase(); got != "web-01" {
		t.Errorf("TitleBase() = %q, want display name", got)
	}
}

func TestHasCredentials(t *testing.T) {
	cases := []struct {
		name string
		host Host
		want bool
	}{
		{"password set", Host{AuthMethod: AuthPassword, Secret: "x"}, true},
		{"password missing", Host{AuthMethod: AuthPassword}, false},
		{"key set", Host{AuthMethod: AuthKey, KeyData: "PEM"}, true},
		{"key missing", Host{AuthMethod: AuthKey}, false},
		{"no auth needed", Host{AuthMethod: AuthNone}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.host.HasCredentials(); got != tc.want {
				t.Errorf("HasCredentials() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseAuthMethodRoundTrip(t *testing.T) {
	for _, m := range []AuthMethod{AuthNone, AuthPassword, AuthKey} {
		if got := ParseAuthMethod(m.String()); got != m {
			t.Errorf("ParseAuthMethod(%q) = %v, want %v", m.String(), got, m)
		}
	}
	if got := ParseAuthMethod("bogus"); got != AuthNone {
		t.Errorf("unknown method must map to AuthNone, got %v", got)
	}
}

func TestUsesWebsocket(t *testing.T) {
	if (Host{}).UsesWebsocket() {
		t.Error("default transport must be ssh")
	}
	if !(Host{Transport: TransportWebsocket}).UsesWebsocket() {
		t.Error("websocket transport not recognized")
	}
}

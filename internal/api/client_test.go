package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/auhlig/homematicip-exporter/internal/errors"
)

func TestNormalizeAccessPointID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3014-f711-a000-0000-bad0-c0de", "3014F711A0000000BAD0C0DE"},
		{"3014F711A0000000BAD0C0DE", "3014F711A0000000BAD0C0DE"},
	}

	for _, tt := range tests {
		if got := normalizeAccessPointID(tt.in); got != tt.want {
			t.Errorf("normalizeAccessPointID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientAuthToken(t *testing.T) {
	token := clientAuthToken("3014-f711-a000-0000-bad0-c0de")

	// SHA-512 hex digest, upper case.
	if len(token) != 128 {
		t.Errorf("Expected 128 hex chars, got %d", len(token))
	}
	if token != strings.ToUpper(token) {
		t.Error("Expected upper case digest")
	}

	// Separator and case variations of the id must hash identically.
	if clientAuthToken("3014F711A0000000BAD0C0DE") != token {
		t.Error("Expected normalized ids to produce the same CLIENTAUTH value")
	}
}

func lookupHandler(t *testing.T, restURL, wsURL string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST lookup, got %s", r.Method)
		}
		if r.Header.Get("AUTHTOKEN") == "" || r.Header.Get("CLIENTAUTH") == "" {
			t.Error("Expected auth headers on lookup request")
		}
		if r.Header.Get("VERSION") != apiVersionHeader {
			t.Errorf("Expected VERSION header %q, got %q", apiVersionHeader, r.Header.Get("VERSION"))
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode lookup body: %v", err)
		}
		if body["id"] != "3014F711A0000000BAD0C0DE" {
			t.Errorf("Expected normalized access point id, got %v", body["id"])
		}

		json.NewEncoder(w).Encode(map[string]string{
			"urlREST":      restURL,
			"urlWebSocket": wsURL,
		})
	}
}

func TestConnectResolvesEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/getHost", lookupHandler(t, server.URL, "wss://push.example.com"))

	session := NewSession("token", "3014-f711-a000-0000-bad0-c0de", server.URL+"/getHost", 5*time.Second)

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if session.ConnectionState() != StateConnected {
		t.Errorf("Expected state connected, got %s", session.ConnectionState())
	}
	if session.WebsocketURL() != "wss://push.example.com" {
		t.Errorf("Unexpected websocket URL %q", session.WebsocketURL())
	}
}

func TestConnectAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "INVALID_AUTHORIZATION", http.StatusUnauthorized)
	}))
	defer server.Close()

	session := NewSession("bad-token", "3014-f711-a000-0000-bad0-c0de", server.URL+"/getHost", 5*time.Second)

	err := session.Connect(context.Background())
	if !apperrors.IsAuthError(err) {
		t.Errorf("Expected auth error, got %v", err)
	}
	if session.ConnectionState() != StateFailed {
		t.Errorf("Expected state failed, got %s", session.ConnectionState())
	}
}

const currentStateBody = `{
	"home": {"currentAPVersion": "1.2.18"},
	"devices": {
		"therm-1": {
			"id": "therm-1",
			"label": "Heizung Wohnzimmer",
			"type": "HEATING_THERMOSTAT",
			"functionalChannels": {
				"1": {
					"functionalChannelType": "HEATING_THERMOSTAT_CHANNEL",
					"valvePosition": 0.42
				}
			}
		},
		"broken-1": {
			"id": "broken-1",
			"label": "Kaputt",
			"functionalChannels": "not an object"
		},
		"unlabelled-1": {
			"id": "unlabelled-1"
		}
	},
	"groups": {
		"meta-1": {
			"id": "meta-1",
			"label": "Wohnzimmer",
			"type": "META",
			"channels": [{"deviceId": "therm-1", "channelIndex": 1}]
		},
		"broken-g": {
			"label": "ohne id"
		}
	}
}`

func TestFetchCurrentState(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/getHost", lookupHandler(t, server.URL, ""))
	mux.HandleFunc("/hmip/home/getCurrentState", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.Write([]byte(currentStateBody))
	})

	session := NewSession("token", "3014-f711-a000-0000-bad0-c0de", server.URL+"/getHost", 5*time.Second)

	// No explicit Connect: the first fetch resolves the endpoints itself.
	snap, err := session.FetchCurrentState(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentState failed: %v", err)
	}

	if snap.Home.CurrentAPVersion != "1.2.18" {
		t.Errorf("Unexpected AP version %q", snap.Home.CurrentAPVersion)
	}
	if len(snap.Devices) != 1 {
		t.Errorf("Expected 1 decodable device, got %d", len(snap.Devices))
	}
	if len(snap.Groups) != 1 {
		t.Errorf("Expected 1 decodable group, got %d", len(snap.Groups))
	}
	// broken-1, unlabelled-1 and broken-g are dropped individually.
	if snap.MalformedObjects != 3 {
		t.Errorf("Expected 3 malformed objects, got %d", snap.MalformedObjects)
	}

	therm := snap.Devices["therm-1"]
	ch := therm.FunctionalChannels["1"]
	if ch.ValvePosition == nil || *ch.ValvePosition != 0.42 {
		t.Errorf("Expected valvePosition=0.42, got %v", ch.ValvePosition)
	}

	if session.ConnectionState() != StateConnected {
		t.Errorf("Expected state connected, got %s", session.ConnectionState())
	}
}

func TestFetchServerErrorIsRetryable(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/getHost", lookupHandler(t, server.URL, ""))
	mux.HandleFunc("/hmip/home/getCurrentState", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	session := NewSession("token", "3014-f711-a000-0000-bad0-c0de", server.URL+"/getHost", 5*time.Second)

	_, err := session.FetchCurrentState(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
	if !apperrors.IsRetryable(err) {
		t.Errorf("Expected 503 to be retryable, got %v", err)
	}
	if apperrors.IsAuthError(err) {
		t.Errorf("Expected no auth error for 503, got %v", err)
	}
}

func TestReauthenticateRecoversSession(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/getHost", lookupHandler(t, server.URL, ""))

	session := NewSession("token", "3014-f711-a000-0000-bad0-c0de", server.URL+"/getHost", 5*time.Second)
	session.setState(StateFailed)

	if err := session.Reauthenticate(context.Background()); err != nil {
		t.Fatalf("Reauthenticate failed: %v", err)
	}
	if session.ConnectionState() != StateConnected {
		t.Errorf("Expected state connected after reauth, got %s", session.ConnectionState())
	}
}

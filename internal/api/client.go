// Package api provides the authenticated session against the HomematicIP
// cloud. The access point is not addressed directly: a lookup service
// resolves the REST and websocket endpoints for an access point id, and
// every request authenticates with the AUTHTOKEN and CLIENTAUTH headers.
package api

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/auhlig/homematicip-exporter/internal/errors"
	"github.com/auhlig/homematicip-exporter/pkg/device"
)

// clientAuthSalt is the constant the vendor appends to the access point id
// before hashing it into the CLIENTAUTH header.
const clientAuthSalt = "jiLpVitHvWnIGD1yo7MA"

const apiVersionHeader = "12"

// ConnectionState describes the session's relationship to the cloud API.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnected    ConnectionState = "connected"
	StateFailed       ConnectionState = "failed"
)

// Session is the authenticated handle to the HomematicIP cloud API. Its
// sole collection operation is FetchCurrentState; Reauthenticate
// re-establishes the session after fatal auth errors.
type Session struct {
	httpClient  *http.Client
	lookupURL   string
	accessPoint string
	limiter     *rate.Limiter

	mu      sync.RWMutex
	restURL string
	wsURL   string
	state   ConnectionState
}

// NewSession creates a session for the given credentials. The session is
// Disconnected until the first successful Connect or fetch.
func NewSession(authToken, accessPoint, lookupURL string, timeout time.Duration) *Session {
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &authTransport{
			authToken:  authToken,
			clientAuth: clientAuthToken(accessPoint),
			transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}

	return &Session{
		httpClient:  httpClient,
		lookupURL:   lookupURL,
		accessPoint: normalizeAccessPointID(accessPoint),
		limiter:     rate.NewLimiter(rate.Every(time.Second), 3),
		state:       StateDisconnected,
	}
}

// authTransport adds the vendor auth headers to every request.
type authTransport struct {
	authToken  string
	clientAuth string
	transport  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("VERSION", apiVersionHeader)
	req.Header.Set("AUTHTOKEN", t.authToken)
	req.Header.Set("CLIENTAUTH", t.clientAuth)
	return t.transport.RoundTrip(req)
}

// clientAuthToken derives the CLIENTAUTH header value from the access point
// id the way the vendor clients do: SHA-512 over id plus a constant salt,
// hex encoded in upper case.
func clientAuthToken(accessPoint string) string {
	sum := sha512.Sum512([]byte(normalizeAccessPointID(accessPoint) + clientAuthSalt))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// normalizeAccessPointID strips separators and upper-cases the id, matching
// the format the lookup service expects.
func normalizeAccessPointID(id string) string {
	return strings.ToUpper(strings.ReplaceAll(id, "-", ""))
}

// clientCharacteristics is the request body boilerplate the vendor API
// expects on every POST.
func (s *Session) clientCharacteristics() map[string]interface{} {
	return map[string]interface{}{
		"clientCharacteristics": map[string]interface{}{
			"apiVersion":            apiVersionHeader,
			"applicationIdentifier": "homematicip-exporter",
			"applicationVersion":    "1.0",
			"deviceManufacturer":    "none",
			"deviceType":            "Computer",
			"language":              "en_US",
			"osType":                "linux",
			"osVersion":             "",
		},
		"id": s.accessPoint,
	}
}

type lookupResponse struct {
	URLRest      string `json:"urlREST"`
	URLWebSocket string `json:"urlWebSocket"`
}

// Connect resolves the REST and websocket endpoints for the access point.
// It must succeed once before FetchCurrentState can be used.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(s.clientCharacteristics())
	if err != nil {
		return fmt.Errorf("failed to encode lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.lookupURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create lookup request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.setState(StateDisconnected)
		return apperrors.NewAPIError(s.lookupURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.setState(s.stateForStatus(resp.StatusCode))
		return s.apiError(s.lookupURL, resp)
	}

	var lookup lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if lookup.URLRest == "" {
		return fmt.Errorf("lookup response contains no REST endpoint")
	}

	s.mu.Lock()
	s.restURL = lookup.URLRest
	s.wsURL = lookup.URLWebSocket
	s.state = StateConnected
	s.mu.Unlock()

	slog.Info("resolved access point endpoints", "rest", lookup.URLRest)
	return nil
}

// Reauthenticate re-runs the endpoint lookup with the existing credentials.
// The vendor has no refresh operation for static auth tokens, so a rejected
// token either recovers here (stale endpoints) or keeps failing.
func (s *Session) Reauthenticate(ctx context.Context) error {
	slog.Warn("re-establishing session with access point")
	return s.Connect(ctx)
}

// currentStateResponse decodes devices and groups as raw messages so one
// malformed object never aborts the whole snapshot.
type currentStateResponse struct {
	Home    device.Home                `json:"home"`
	Devices map[string]json.RawMessage `json:"devices"`
	Groups  map[string]json.RawMessage `json:"groups"`
}

// FetchCurrentState retrieves the full device and group snapshot from the
// access point. This is the session's sole collection operation.
func (s *Session) FetchCurrentState(ctx context.Context) (*device.Snapshot, error) {
	s.mu.RLock()
	restURL := s.restURL
	s.mu.RUnlock()

	// A session that never connected (or lost its endpoints) heals itself
	// here so the collector keeps retrying on its normal schedule.
	if restURL == "" {
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		restURL = s.restURL
		s.mu.RUnlock()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := restURL + "/hmip/home/getCurrentState"
	body, err := json.Marshal(s.clientCharacteristics())
	if err != nil {
		return nil, fmt.Errorf("failed to encode state request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create state request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.setState(StateDisconnected)
		return nil, apperrors.NewAPIError(endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.setState(s.stateForStatus(resp.StatusCode))
		return nil, s.apiError(endpoint, resp)
	}

	var result currentStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode state response: %w", err)
	}

	s.setState(StateConnected)
	return s.convertSnapshot(&result), nil
}

// convertSnapshot decodes every device and group individually, logging and
// skipping malformed entries instead of failing the snapshot.
func (s *Session) convertSnapshot(result *currentStateResponse) *device.Snapshot {
	snap := &device.Snapshot{
		Home:    result.Home,
		Devices: make(map[string]device.Device, len(result.Devices)),
		Groups:  make(map[string]device.Group, len(result.Groups)),
	}

	for id, raw := range result.Devices {
		var d device.Device
		if err := json.Unmarshal(raw, &d); err != nil {
			slog.Warn("skipping malformed device object", "id", id, "error", err)
			snap.MalformedObjects++
			continue
		}
		if err := d.Validate(); err != nil {
			slog.Warn("skipping device with missing fields", "id", id, "error", err)
			snap.MalformedObjects++
			continue
		}
		snap.Devices[id] = d
	}

	for id, raw := range result.Groups {
		var g device.Group
		if err := json.Unmarshal(raw, &g); err != nil {
			slog.Warn("skipping malformed group object", "id", id, "error", err)
			snap.MalformedObjects++
			continue
		}
		if g.ID == "" {
			slog.Warn("skipping group with missing id")
			snap.MalformedObjects++
			continue
		}
		snap.Groups[id] = g
	}

	return snap
}

// ConnectionState returns the session's current connection state.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// WebsocketURL returns the push endpoint resolved by Connect, or "" if the
// lookup did not provide one.
func (s *Session) WebsocketURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wsURL
}

// AuthHeaders returns the headers required to authenticate the websocket
// handshake.
func (s *Session) AuthHeaders() http.Header {
	t := s.httpClient.Transport.(*authTransport)
	h := http.Header{}
	h.Set("AUTHTOKEN", t.authToken)
	h.Set("CLIENTAUTH", t.clientAuth)
	return h
}

func (s *Session) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) stateForStatus(status int) ConnectionState {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return StateFailed
	}
	return StateDisconnected
}

func (s *Session) apiError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return apperrors.NewAPIError(endpoint, resp.StatusCode,
		fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)))
}

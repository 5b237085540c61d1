// Package api is the agent's HTTP client for the backend. It classifies
// every failure into an error kind at the networking layer so no caller
// ever inspects response text to decide what went wrong.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/seamark/fieldops/internal/agent/mutation"
	"github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/platform/timeouts"
)

// DeviceSessionHeader carries the caller's device session identifier on
// session-sensitive requests.
const DeviceSessionHeader = "X-Device-Session"

// Credentials are attached to protected calls.
type Credentials struct {
	BearerToken     string
	DeviceSessionID string
}

// CredentialSource supplies the current credentials for protected calls.
type CredentialSource func(ctx context.Context) (Credentials, error)

// Client talks to the backend over HTTP.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialSource
}

// New creates a client for the backend at baseURL. credentials may be nil
// for login-only use.
func New(baseURL string, credentials CredentialSource) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeouts.APIRequest},
		credentials: credentials,
	}
}

// LoginResult is the backend's answer to a successful login.
type LoginResult struct {
	Token      string `json:"token"`
	IdentityID string `json:"identityId"`
	TenantID   string `json:"tenantId"`
}

// SessionInfo is the identity context returned by a session check.
type SessionInfo struct {
	IdentityID      string `json:"identityId"`
	TenantID        string `json:"tenantId"`
	DeviceSessionID string `json:"deviceSessionId"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Login authenticates and registers deviceSessionID as the authoritative
// device session for the identity.
func (c *Client) Login(ctx context.Context, email, password, deviceSessionID string) (LoginResult, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return LoginResult{}, fmt.Errorf("marshal login request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/login", bytes.NewReader(body))
	if err != nil {
		return LoginResult{}, fmt.Errorf("build login request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(DeviceSessionHeader, deviceSessionID)

	var result LoginResult
	if err := c.do(request, &result); err != nil {
		return LoginResult{}, err
	}
	return result, nil
}

// SessionCheck confirms the held session is still authoritative.
func (c *Client) SessionCheck(ctx context.Context) (SessionInfo, error) {
	request, err := c.protectedRequest(ctx, http.MethodGet, "/v1/session", nil, "")
	if err != nil {
		return SessionInfo{}, err
	}
	var info SessionInfo
	if err := c.do(request, &info); err != nil {
		return SessionInfo{}, err
	}
	return info, nil
}

// Takeover overwrites the session authority with deviceSessionID. The
// request carries no body; the device session header is the whole claim.
func (c *Client) Takeover(ctx context.Context, deviceSessionID string) error {
	request, err := c.protectedRequest(ctx, http.MethodPost, "/v1/session/takeover", nil, deviceSessionID)
	if err != nil {
		return err
	}
	return c.do(request, nil)
}

// SendMutation delivers one queued record to its mapped endpoint.
func (c *Client) SendMutation(ctx context.Context, record mutation.Record) error {
	if record.Payload == nil {
		return errors.New(errors.CodeMutationPayloadEmpty, "record payload is required")
	}
	body, err := mutation.MarshalPayload(record)
	if err != nil {
		return err
	}
	route := record.Payload.Route()
	request, err := c.protectedRequest(ctx, route.Method, route.Path, bytes.NewReader(body), "")
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	return c.do(request, nil)
}

// protectedRequest builds a request carrying the bearer credential and the
// device session header. deviceSessionOverride replaces the stored session
// identifier; takeover uses it to assert the new session before it is
// persisted locally.
func (c *Client) protectedRequest(ctx context.Context, method, path string, body io.Reader, deviceSessionOverride string) (*http.Request, error) {
	if c.credentials == nil {
		return nil, errors.New(errors.CodeCredentialInvalid, "no credential source configured")
	}
	credentials, err := c.credentials(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCredentialInvalid, "load credentials", err)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	request.Header.Set("Authorization", "Bearer "+credentials.BearerToken)
	deviceSessionID := credentials.DeviceSessionID
	if deviceSessionOverride != "" {
		deviceSessionID = deviceSessionOverride
	}
	request.Header.Set(DeviceSessionHeader, deviceSessionID)
	return request, nil
}

// do executes the request and classifies any failure. Transport-level
// errors are transient; HTTP failures map through the wire error code when
// the body carries one, otherwise through the status.
func (c *Client) do(request *http.Request, out any) error {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return errors.Wrap(errors.CodeNetworkUnavailable, "reach backend", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return errors.Wrap(errors.CodeServerUnavailable, "decode response", err)
		}
		return nil
	}

	var wire errorResponse
	if err := json.NewDecoder(response.Body).Decode(&wire); err == nil && wire.Code != "" {
		return errors.WithMetadata(errors.Code(wire.Code), wire.Message,
			map[string]string{"status": fmt.Sprintf("%d", response.StatusCode)})
	}
	switch {
	case response.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.CodeCredentialInvalid, "request rejected as unauthenticated")
	case response.StatusCode == http.StatusForbidden:
		return errors.New(errors.CodeSessionConflict, "request rejected as not authoritative")
	case response.StatusCode == http.StatusBadRequest || response.StatusCode == http.StatusUnprocessableEntity:
		return errors.New(errors.CodeInvalidRequest, "request rejected as invalid")
	}
	return errors.WithMetadata(errors.CodeServerUnavailable, "backend failure",
		map[string]string{"status": fmt.Sprintf("%d", response.StatusCode)})
}

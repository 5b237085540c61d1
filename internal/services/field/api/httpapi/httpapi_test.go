package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/services/field/storage"
	fieldsqlite "github.com/seamark/fieldops/internal/services/field/storage/sqlite"
	"github.com/seamark/fieldops/internal/services/field/token"
)

func newTestServer(t *testing.T) (*httptest.Server, storage.Store) {
	t.Helper()
	store, err := fieldsqlite.Open(filepath.Join(t.TempDir(), "field.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens := token.Config{
		Issuer: "fieldops", Audience: "fieldops-agent",
		Key: key, TTL: time.Hour, Now: time.Now,
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = store.PutIdentity(context.Background(), storage.Identity{
		ID: "identity-1", TenantID: "tenant-1",
		Email: "sam@example.com", PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	mux := http.NewServeMux()
	NewHandler(store, tokens).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

type session struct {
	token           string
	deviceSessionID string
}

func login(t *testing.T, server *httptest.Server, deviceSessionID string) session {
	t.Helper()
	body := []byte(`{"email":"sam@example.com","password":"hunter2"}`)
	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/login", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build login: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeviceSessionHeader, deviceSessionID)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var decoded struct {
		Token           string `json:"token"`
		DeviceSessionID string `json:"deviceSessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return session{token: decoded.Token, deviceSessionID: decoded.DeviceSessionID}
}

func doRequest(t *testing.T, server *httptest.Server, s session, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set(DeviceSessionHeader, s.deviceSessionID)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var decoded errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return decoded.Code
}

func TestLoginRejectsBadPassword(t *testing.T) {
	server, _ := newTestServer(t)

	body := []byte(`{"email":"sam@example.com","password":"wrong"}`)
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/login", bytes.NewReader(body))
	req.Header.Set(DeviceSessionHeader, "device-a")
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != string(apperrors.CodeLoginRejected) {
		t.Fatalf("code = %s, want LOGIN_REJECTED", code)
	}
}

func TestSecondLoginDisplacesFirstDevice(t *testing.T) {
	server, _ := newTestServer(t)

	deviceA := login(t, server, "device-a")
	deviceB := login(t, server, "device-b")

	// Device B now holds the authority; device A's protected calls fail
	// with a session conflict while B's succeed.
	respA := doRequest(t, server, deviceA, http.MethodGet, "/v1/session", nil)
	if respA.StatusCode != http.StatusForbidden {
		t.Fatalf("device A status = %d, want 403", respA.StatusCode)
	}
	if code := errorCode(t, respA); code != string(apperrors.CodeSessionConflict) {
		t.Fatalf("device A code = %s, want SESSION_CONFLICT", code)
	}

	respB := doRequest(t, server, deviceB, http.MethodGet, "/v1/session", nil)
	if respB.StatusCode != http.StatusOK {
		t.Fatalf("device B status = %d, want 200", respB.StatusCode)
	}
}

func TestTakeoverMovesAuthority(t *testing.T) {
	server, store := newTestServer(t)

	deviceA := login(t, server, "device-a")
	login(t, server, "device-b")

	// Device A takes back the session with a freshly minted session id.
	claimant := session{token: deviceA.token, deviceSessionID: "device-a-2"}
	resp := doRequest(t, server, claimant, http.MethodPost, "/v1/session/takeover", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("takeover status = %d, want 200", resp.StatusCode)
	}

	check := doRequest(t, server, claimant, http.MethodGet, "/v1/session", nil)
	if check.StatusCode != http.StatusOK {
		t.Fatalf("re-verify status = %d, want 200", check.StatusCode)
	}

	authority, err := store.GetSessionAuthority(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("get authority: %v", err)
	}
	if authority.DeviceSessionID != "device-a-2" {
		t.Fatalf("authority session = %s, want device-a-2", authority.DeviceSessionID)
	}
	if authority.Version != 3 {
		t.Fatalf("authority version = %d, want 3 after two logins and a takeover", authority.Version)
	}
}

func TestProtectedRequiresDeviceSessionHeader(t *testing.T) {
	server, _ := newTestServer(t)
	s := login(t, server, "device-a")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("session check: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != string(apperrors.CodeDeviceSessionMissing) {
		t.Fatalf("code = %s, want DEVICE_SESSION_MISSING", code)
	}
}

func TestProtectedRejectsGarbageBearer(t *testing.T) {
	server, _ := newTestServer(t)
	s := session{token: "not-a-token", deviceSessionID: "device-a"}

	resp := doRequest(t, server, s, http.MethodGet, "/v1/session", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCrewAssignmentRedeliveryConverges(t *testing.T) {
	server, store := newTestServer(t)
	s := login(t, server, "device-a")
	body := []byte(`{"jobId":"job-1","crewId":"crew-9","phase":"rough-in"}`)

	// At-least-once delivery means the same mutation can arrive twice.
	for range 2 {
		resp := doRequest(t, server, s, http.MethodPut, "/v1/jobs/job-1/crew-assignment", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	}

	assignment, err := store.GetCrewAssignment(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if assignment.CrewID != "crew-9" {
		t.Fatalf("assignment = %+v", assignment)
	}
}

func TestCommandValidationFailures(t *testing.T) {
	server, _ := newTestServer(t)
	s := login(t, server, "device-a")

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode apperrors.Code
	}{
		{"missing crew", "/v1/jobs/job-1/crew-assignment", `{"jobId":"job-1","phase":"x"}`, apperrors.CodeCrewIDEmpty},
		{"path mismatch", "/v1/jobs/job-1/crew-assignment", `{"jobId":"job-2","crewId":"c","phase":"x"}`, apperrors.CodeInvalidRequest},
		{"nameless material", "/v1/materials/mat-1", `{"id":"mat-1"}`, apperrors.CodeEntityNameEmpty},
		{"nameless supplier", "/v1/suppliers/sup-1", `{"id":"sup-1"}`, apperrors.CodeEntityNameEmpty},
		{"timeless task", "/v1/schedule/task-1", `{"id":"task-1","jobId":"j","crewId":"c"}`, apperrors.CodeScheduleTimeMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, server, s, http.MethodPut, tt.path, []byte(tt.body))
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if code := errorCode(t, resp); code != string(tt.wantCode) {
				t.Fatalf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestJobNotesEndpointReplacesSet(t *testing.T) {
	server, store := newTestServer(t)
	s := login(t, server, "device-a")

	first := []byte(`{"jobId":"job-1","notes":[{"id":"n1","body":"check panel","notedAt":"2026-08-28T10:00:00Z"}]}`)
	resp := doRequest(t, server, s, http.MethodPut, "/v1/jobs/job-1/notes", first)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first sync status = %d", resp.StatusCode)
	}

	second := []byte(`{"jobId":"job-1","notes":[{"id":"n2","body":"panel done","notedAt":"2026-08-28T11:00:00Z"}]}`)
	resp = doRequest(t, server, s, http.MethodPut, "/v1/jobs/job-1/notes", second)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second sync status = %d", resp.StatusCode)
	}

	notes, err := store.ListJobNotes(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 1 || notes[0].NoteID != "n2" {
		t.Fatalf("notes = %+v, want only n2", notes)
	}
}

func TestJobDefaultEndpointsStoreSets(t *testing.T) {
	server, store := newTestServer(t)
	s := login(t, server, "device-a")

	body := []byte(`{"jobId":"job-1","ids":["sup-1","sup-2"]}`)
	resp := doRequest(t, server, s, http.MethodPut, "/v1/jobs/job-1/supervisors", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	jobDefault, err := store.GetJobDefault(context.Background(), "job-1", "supervisors")
	if err != nil {
		t.Fatalf("get job default: %v", err)
	}
	if len(jobDefault.IDs) != 2 {
		t.Fatalf("ids = %v", jobDefault.IDs)
	}
}

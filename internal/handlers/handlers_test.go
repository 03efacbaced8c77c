package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

type stubGateway struct {
	mu         sync.Mutex
	docs       []models.Document
	conference models.Conference
	renders    int
	failRender bool
}

func (s *stubGateway) Analyze(_ context.Context, doc models.Document, conference models.Conference) (*models.PaperAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	s.conference = conference
	return &models.PaperAnalysis{
		Title:                 "Stub Paper",
		Summary:               "S",
		LayoutStrategy:        "Linear Pipeline",
		ArchitectureBlueprint: "B",
		KeyComponents:         []string{"Encoder"},
	}, nil
}

func (s *stubGateway) analyzed() ([]models.Document, models.Conference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Document{}, s.docs...), s.conference
}

func (s *stubGateway) setFailRender(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRender = fail
}

func (s *stubGateway) render() (models.ImageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRender {
		return "", fmt.Errorf("%w: no image data found", providers.ErrRender)
	}
	s.renders++
	return models.NewImageRef("image/png", append(append([]byte{}, pngHeader...), byte(s.renders))), nil
}

func (s *stubGateway) Generate(context.Context, string) (models.ImageRef, error) {
	return s.render()
}

func (s *stubGateway) Refine(context.Context, models.ImageRef, string, string) (models.ImageRef, error) {
	return s.render()
}

func newTestServer(t *testing.T) (*httptest.Server, *stubGateway) {
	t.Helper()
	gw := &stubGateway{}
	srv := httptest.NewServer(New(gw).Routes())
	t.Cleanup(srv.Close)
	return srv, gw
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) sessionResponse {
	t.Helper()
	var s sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	return s
}

func createSession(t *testing.T, srv *httptest.Server, conference string) sessionResponse {
	t.Helper()
	resp := do(t, "POST", srv.URL+"/api/sessions", map[string]string{"conference": conference})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	return decodeSession(t, resp)
}

func TestHealthcheck(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, "GET", srv.URL+"/healthcheck", nil)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("Unexpected healthcheck response %d %q", resp.StatusCode, body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, gw := newTestServer(t)

	session := createSession(t, srv, "acl")
	if session.State.Conference != models.ConferenceACL || session.State.Stage != models.StageSetup {
		t.Fatalf("Unexpected new session %+v", session.State)
	}
	base := srv.URL + "/api/sessions/" + session.ID

	resp := do(t, "POST", base+"/analyze", map[string]string{"text": "our method"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Analyze returned %d", resp.StatusCode)
	}
	st := decodeSession(t, resp)
	if st.State.Stage != models.StageUnderstanding || st.State.Analysis.Title != "Stub Paper" {
		t.Errorf("Unexpected state after analyze %+v", st.State)
	}
	docs, conference := gw.analyzed()
	if conference != models.ConferenceACL || docs[0].Text != "our method" {
		t.Errorf("Gateway got conference=%s doc=%+v", conference, docs[0])
	}
	if !st.CanNavigate["UNDERSTANDING"] || st.CanNavigate["GENERATION"] {
		t.Errorf("Unexpected navigation flags %v", st.CanNavigate)
	}

	resp = do(t, "POST", base+"/generate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Generate returned %d", resp.StatusCode)
	}
	generated := decodeSession(t, resp).State.CurrentImage

	resp = do(t, "PUT", base+"/draft", map[string]string{"text": "make encoder blue"})
	if got := decodeSession(t, resp).State.RefinementDraft; got != "make encoder blue" {
		t.Errorf("Draft not stored, got %q", got)
	}

	resp = do(t, "POST", base+"/refine", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Refine returned %d", resp.StatusCode)
	}
	st = decodeSession(t, resp)
	if st.State.Stage != models.StageRefinement || len(st.State.History) != 2 || st.State.History[0].Prompt != "make encoder blue" {
		t.Fatalf("Unexpected state after refine %+v", st.State)
	}

	resp = do(t, "POST", base+"/select", map[string]string{"timestamp": st.State.History[1].Timestamp.Format(time.RFC3339Nano)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Select returned %d", resp.StatusCode)
	}
	if got := decodeSession(t, resp).State.CurrentImage; got != generated {
		t.Errorf("Select did not restore the initial image")
	}

	resp = do(t, "GET", base+"/image", nil)
	data, _ := io.ReadAll(resp.Body)
	if resp.Header.Get("Content-Type") != "image/png" || !bytes.HasPrefix(data, pngHeader) {
		t.Errorf("Unexpected image response %s %q", resp.Header.Get("Content-Type"), data)
	}

	resp = do(t, "GET", base+"/report", nil)
	report, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(report), "<h1>Stub Paper</h1>") {
		t.Errorf("Report missing title")
	}

	resp = do(t, "GET", base+"/export.yaml", nil)
	record, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(record), "stage: REFINEMENT") {
		t.Errorf("YAML export missing stage:\n%s", record)
	}

	resp = do(t, "GET", base+"/archive.parquet", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/vnd.apache.parquet" {
		t.Errorf("Unexpected archive response %d", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/api/sessions", nil)
	var list []sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Errorf("Expected one session in list, got %d (%v)", len(list), err)
	}

	if resp := do(t, "DELETE", base, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("Delete returned %d", resp.StatusCode)
	}
	if resp := do(t, "GET", base, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Deleted session returned %d", resp.StatusCode)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		action     string
		body       any
		failRender bool
		analyzed   bool
		wantStatus int
		wantError  bool
	}{
		{name: "generate before analyze", method: "POST", action: "/generate", wantStatus: http.StatusConflict, wantError: true},
		{name: "refine without image", method: "POST", action: "/refine", body: map[string]string{"instruction": "x"}, analyzed: true, wantStatus: http.StatusConflict, wantError: true},
		{name: "render failure", method: "POST", action: "/generate", analyzed: true, failRender: true, wantStatus: http.StatusBadGateway, wantError: true},
		{name: "navigate not allowed", method: "POST", action: "/navigate", body: map[string]string{"stage": "GENERATION"}, wantStatus: http.StatusConflict, wantError: true},
		{name: "unknown stage", method: "POST", action: "/navigate", body: map[string]string{"stage": "DONE"}, wantStatus: http.StatusBadRequest},
		{name: "bad timestamp", method: "POST", action: "/select", body: map[string]string{"timestamp": "yesterday"}, wantStatus: http.StatusBadRequest},
		{name: "unknown timestamp", method: "POST", action: "/select", body: map[string]string{"timestamp": "2020-01-01T00:00:00Z"}, wantStatus: http.StatusConflict, wantError: true},
		{name: "unknown conference", method: "PUT", action: "/conference", body: map[string]string{"conference": "SIGGRAPH"}, wantStatus: http.StatusBadRequest},
		{name: "empty text", method: "POST", action: "/analyze", body: map[string]string{"text": "  "}, wantStatus: http.StatusBadRequest},
		{name: "no image yet", method: "GET", action: "/image", wantStatus: http.StatusNotFound},
		{name: "no archive yet", method: "GET", action: "/archive.parquet", wantStatus: http.StatusNotFound},
		{name: "unknown action", method: "GET", action: "/bogus", wantStatus: http.StatusNotFound},
		{name: "wrong method", method: "GET", action: "/generate", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, gw := newTestServer(t)
			gw.setFailRender(tt.failRender)
			session := createSession(t, srv, "")
			base := srv.URL + "/api/sessions/" + session.ID
			if tt.analyzed {
				if resp := do(t, "POST", base+"/analyze", map[string]string{"text": "paper"}); resp.StatusCode != http.StatusOK {
					t.Fatalf("Analyze returned %d", resp.StatusCode)
				}
			}

			resp := do(t, tt.method, base+tt.action, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if !tt.wantError {
				return
			}
			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if body.Error == "" || body.Session == nil {
				t.Fatalf("Error response missing fields: %+v", body)
			}
			if tt.failRender && body.Session.State.LastError != body.Error {
				t.Errorf("last_error %q does not match error %q", body.Session.State.LastError, body.Error)
			}
			if tt.failRender != body.Retryable {
				t.Errorf("Retryable = %v", body.Retryable)
			}
		})
	}
}

func TestCreateSessionInvalidConference(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, "POST", srv.URL+"/api/sessions", map[string]string{"conference": "SIGGRAPH"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if resp := do(t, "GET", srv.URL+"/api/sessions/missing", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func multipartRequest(t *testing.T, url, field, filename, contentType string, data []byte, conference string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if conference != "" {
		if err := mw.WriteField("conference", conference); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest("POST", url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyzeUpload(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		filename    string
		contentType string
		data        []byte
		conference  string
		wantStatus  int
		wantMIME    string
	}{
		{name: "pdf by extension", field: "file", filename: "paper.pdf", contentType: "application/octet-stream", data: []byte("%PDF-1.4 body"), conference: "CVPR", wantStatus: http.StatusOK, wantMIME: "application/pdf"},
		{name: "files field", field: "files", filename: "figure.png", contentType: "image/png", data: pngHeader, wantStatus: http.StatusOK, wantMIME: "image/png"},
		{name: "sniffed text", field: "file", filename: "notes", contentType: "application/octet-stream", data: []byte("plain methodology"), wantStatus: http.StatusOK, wantMIME: "text/plain"},
		{name: "missing file", field: "attachment", filename: "paper.pdf", contentType: "application/pdf", data: []byte("%PDF"), wantStatus: http.StatusBadRequest},
		{name: "too large", field: "file", filename: "big.pdf", contentType: "application/pdf", data: bytes.Repeat([]byte("a"), maxDocumentSize+1), wantStatus: http.StatusBadRequest},
		{name: "bad conference", field: "file", filename: "paper.pdf", contentType: "application/pdf", data: []byte("%PDF"), conference: "SIGGRAPH", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, gw := newTestServer(t)
			session := createSession(t, srv, "")

			req := multipartRequest(t, srv.URL+"/api/sessions/"+session.ID+"/analyze", tt.field, tt.filename, tt.contentType, tt.data, tt.conference)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			docs, conference := gw.analyzed()
			if tt.wantStatus != http.StatusOK {
				if len(docs) != 0 {
					t.Errorf("Gateway called for rejected upload")
				}
				return
			}
			doc := docs[0]
			if doc.MIMEType != tt.wantMIME || doc.Filename != tt.filename || !bytes.Equal(doc.Data, tt.data) {
				t.Errorf("Gateway got %s %s (%d bytes)", doc.Filename, doc.MIMEType, len(doc.Data))
			}
			if tt.conference != "" && string(conference) != tt.conference {
				t.Errorf("Expected conference %s, got %s", tt.conference, conference)
			}
		})
	}
}

func TestAnalyzeFromURL(t *testing.T) {
	paper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/papers/method.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer paper.Close()

	gw := &stubGateway{}
	h := New(gw)
	h.AllowPrivateURLs(true)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()
	session := createSession(t, srv, "")
	base := srv.URL + "/api/sessions/" + session.ID

	resp := do(t, "POST", base+"/analyze", map[string]string{"url": paper.URL + "/papers/method.pdf"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	docs, _ := gw.analyzed()
	if doc := docs[0]; doc.Filename != "method.pdf" || doc.MIMEType != "application/pdf" {
		t.Errorf("Unexpected document %s %s", doc.Filename, doc.MIMEType)
	}

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "missing", body: map[string]string{"url": paper.URL + "/nope.pdf"}},
		{name: "bad scheme", body: map[string]string{"url": "file:///etc/passwd"}},
		{name: "text and url", body: map[string]string{"url": paper.URL + "/papers/method.pdf", "text": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := do(t, "POST", base+"/analyze", tt.body); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	session := createSession(t, srv, "")

	resp := do(t, "POST", srv.URL+"/api/sessions/"+session.ID+"/cancel", nil)
	var body struct {
		Cancelled bool            `json:"cancelled"`
		Session   sessionResponse `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Cancelled || body.Session.State.LastError != "" {
		t.Errorf("Cancel with nothing in flight should be a no-op: %+v", body)
	}
}

func TestAnalyzeFromPrivateURLRefused(t *testing.T) {
	paper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer paper.Close()

	srv, gw := newTestServer(t)
	session := createSession(t, srv, "")
	base := srv.URL + "/api/sessions/" + session.ID

	resp := do(t, "POST", base+"/analyze", map[string]string{"url": paper.URL + "/method.pdf"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a loopback url, got %d", resp.StatusCode)
	}
	if docs, _ := gw.analyzed(); len(docs) != 0 {
		t.Errorf("Gateway should not be called, got %d documents", len(docs))
	}
}

func TestPublicOnly(t *testing.T) {
	tests := []struct {
		address string
		wantErr bool
	}{
		{address: "127.0.0.1:80", wantErr: true},
		{address: "[::1]:443", wantErr: true},
		{address: "10.1.2.3:80", wantErr: true},
		{address: "192.168.0.10:8080", wantErr: true},
		{address: "169.254.169.254:80", wantErr: true},
		{address: "0.0.0.0:80", wantErr: true},
		{address: "[::ffff:127.0.0.1]:80", wantErr: true},
		{address: "93.184.216.34:443"},
		{address: "[2606:4700::1111]:443"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			err := publicOnly("tcp", tt.address, nil)
			if tt.wantErr != (err != nil) {
				t.Errorf("publicOnly(%s) = %v, wantErr %v", tt.address, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errPrivateAddress) {
				t.Errorf("Expected errPrivateAddress, got %v", err)
			}
		})
	}
}

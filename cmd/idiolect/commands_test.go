package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/idiolect/internal/api"
	"github.com/kalambet/idiolect/internal/storage"
	"github.com/kalambet/idiolect/internal/style"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useClient points every command at c for the duration of the test.
func useClient(t *testing.T, c *apiClient) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return c, nil }
	t.Cleanup(func() { newAPIClient = orig })
}

// runCLI executes the root command and returns what it wrote to stdout and
// stderr. Flags are reset first so values do not leak between tests.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	origOut, origErr, origColor := stdout, stderr, noColor
	stdout, stderr, noColor = &out, &errOut, true
	t.Cleanup(func() { stdout, stderr, noColor = origOut, origErr, origColor })

	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestLearnCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /messages": `{"id":"01J","learned":true,"total_messages":3}`,
	})
	useClient(t, ts.client())

	_, errOut, err := runCLI(t, "", "learn", "alice", "おはよう", "ございます")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(errOut, "3 messages total") {
		t.Errorf("stderr = %q, want total count", errOut)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/messages" {
		t.Errorf("request = %s %s, want POST /messages", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body messageLine
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	want := messageLine{StyleKey: "alice", Role: "user", Content: "おはよう ございます"}
	if body != want {
		t.Errorf("body = %+v, want %+v", body, want)
	}
}

func TestLearnCommand_Stdin(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /messages": `{"id":"01J","learned":true,"total_messages":1}`,
	})
	useClient(t, ts.client())

	if _, _, err := runCLI(t, "えっと、そうだね\n", "learn", "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body messageLine
	json.Unmarshal([]byte(ts.requests[0].Body), &body)
	if body.Content != "えっと、そうだね" {
		t.Errorf("content = %q, want trailing newline trimmed", body.Content)
	}
}

func TestLearnCommand_NotLearnedWarns(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /messages": `{"id":"01J","learned":false,"total_messages":0}`,
	})
	useClient(t, ts.client())

	_, errOut, err := runCLI(t, "", "learn", "alice", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(errOut, "idiolect rebuild alice") {
		t.Errorf("stderr = %q, want rebuild hint", errOut)
	}
}

func TestLearnCommand_MissingKey(t *testing.T) {
	if _, _, err := runCLI(t, "", "learn"); err == nil {
		t.Fatal("expected error for missing style key")
	}
}

func TestImportMessages(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /messages": `{"id":"x","learned":true,"total_messages":1}`,
	})

	input := strings.Join([]string{
		`{"style_key":"alice","content":"one"}`,
		``,
		`{"content":"uses default key"}`,
		`not json`,
		`{"style_key":"carol","role":"assistant","content":"reply"}`,
	}, "\n")

	stats, err := importMessages(context.Background(), ts.client(), strings.NewReader(input), "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.saved != 3 || stats.skipped != 1 {
		t.Errorf("stats = %+v, want 3 saved 1 skipped", stats)
	}

	var second messageLine
	json.Unmarshal([]byte(ts.requests[1].Body), &second)
	if second.StyleKey != "bob" {
		t.Errorf("second line key = %q, want default bob", second.StyleKey)
	}
}

func TestImportMessages_NoKey(t *testing.T) {
	ts := newTestServer(t, nil)

	stats, err := importMessages(context.Background(), ts.client(), strings.NewReader(`{"content":"orphan"}`), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.skipped != 1 || len(ts.requests) != 0 {
		t.Errorf("stats = %+v, requests = %d; want line skipped without a request", stats, len(ts.requests))
	}
}

func TestImportMessages_ServerErrorStops(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := importMessages(context.Background(), ts.client(), strings.NewReader(`{"style_key":"a","content":"x"}`), "")
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("err = %v, want error naming line 1", err)
	}
}

func TestSummaryCommand_Prompt(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /styles/alice/summary": `{"prompt":"Speaking style:\n- Politeness: casual\n"}`,
	})
	useClient(t, ts.client())

	out, _, err := runCLI(t, "", "summary", "alice", "--prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Politeness: casual") {
		t.Errorf("stdout = %q", out)
	}
	if ts.requests[0].Path != "/styles/alice/summary?format=prompt" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func TestSummaryCommand_Human(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /styles/alice/summary": `{"totalMessages":2,"politenessLabel":"neutral","averageLength":9,
			"topSentenceEnders":[{"text":"ね","count":2}],"topWords":[],"topFillerWords":[],
			"firstPersonUsage":[{"text":"僕","count":1}],"topPhrases":[],"lastUpdated":null}`,
	})
	useClient(t, ts.client())

	out, _, err := runCLI(t, "", "summary", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"alice", "(2 messages)", "neutral", "ね×2", "僕×1"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "phrases") {
		t.Errorf("empty rows should be omitted:\n%s", out)
	}
}

func TestSummaryCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	useClient(t, ts.client())

	_, _, err := runCLI(t, "", "summary", "ghost")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *apiError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Type != "not_found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestRebuildCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /styles/alice/rebuild": `{"id":"job-1","status":"queued"}`,
		"POST /styles/rebuild":       `{"rebuilt":["a","b"]}`,
	})
	useClient(t, ts.client())

	tests := []struct {
		name     string
		args     []string
		wantPath string
		wantErr  string
	}{
		{"queued key", []string{"rebuild", "alice"}, "/styles/alice/rebuild", ""},
		{"all and wait", []string{"rebuild", "--all", "--wait"}, "/styles/rebuild?wait=true", ""},
		{"neither", []string{"rebuild"}, "", "either"},
		{"both", []string{"rebuild", "alice", "--all"}, "", "either"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(ts.requests)
			_, errOut, err := runCLI(t, "", tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				if len(ts.requests) != before {
					t.Error("invalid invocation should not call the server")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := ts.requests[len(ts.requests)-1].Path; got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
			if errOut == "" {
				t.Error("expected a success line on stderr")
			}
		})
	}
}

func TestStylesCommand_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /styles": `[]`})
	useClient(t, ts.client())

	out, _, err := runCLI(t, "", "styles")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No style profiles") {
		t.Errorf("stdout = %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "idiolect ") {
		t.Errorf("stdout = %q", out)
	}
}

// TestEndToEnd drives the CLI against the real API handler and an in-memory
// database.
func TestEndToEnd(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	styles := style.NewManager(style.ManagerDeps{
		Store:    style.NewStore(store),
		Analyzer: style.NewAnalyzer(style.DefaultVocabulary(), 0),
		History:  store,
	})
	srv := httptest.NewServer(api.NewAppHandler(api.AppDeps{Store: store, Styles: styles, Token: "test-token"}))
	t.Cleanup(srv.Close)
	useClient(t, &apiClient{baseURL: srv.URL, token: "test-token", httpClient: srv.Client()})

	if _, _, err := runCLI(t, "", "learn", "alice", "僕はそう思うよね"); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if _, _, err := runCLI(t, "", "learn", "alice", "--role", "assistant", "かしこまりました"); err != nil {
		t.Fatalf("learn assistant: %v", err)
	}

	out, _, err := runCLI(t, "", "summary", "alice", "--json")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	var s style.Summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("summary output is not JSON: %v\n%s", err, out)
	}
	if s.TotalMessages != 1 {
		t.Errorf("TotalMessages = %d, want 1 (assistant messages are not learned)", s.TotalMessages)
	}

	if _, _, err := runCLI(t, "", "rebuild", "alice", "--wait"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	p, err := styles.GetProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalMessages != 1 {
		t.Errorf("rebuilt TotalMessages = %d, want 1", p.TotalMessages)
	}
}

package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/time/rate"

	"AgentDesk/internal/adapter"
	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
)

func prepare(t *testing.T, name string, args map[string]any) tool.Call {
	t.Helper()
	set := tool.NewActiveSet(tool.MustDefault(), []tool.Integration{tool.IntegrationGoogle})
	call, err := set.Prepare(name, args)
	if err != nil {
		t.Fatalf("prepare %s: %v", name, err)
	}
	return call
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL + "/", APIKey: "secret"}, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGmailSendPostsActionAndArguments(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/google/gmail" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	call := prepare(t, "manage_gmail", map[string]any{
		"action": "send_email", "to": "dana@example.com", "subject": "Hi", "body": "Hello",
	})
	text, err := (&Gmail{client: client}).Invoke(context.Background(), call)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if text != "Email sent to dana@example.com." {
		t.Fatalf("unexpected text: %q", text)
	}
	if got["action"] != "send_email" || got["subject"] != "Hi" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestRateLimitSignals(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"body code": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"code":"RATE_LIMIT_EXCEEDED","error":"Gmail quota exceeded"}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, handler)
			call := prepare(t, "manage_gmail", map[string]any{"action": "search_emails", "query": "invoice"})
			_, err := (&Gmail{client: client}).Invoke(context.Background(), call)
			if xerrors.CodeOf(err) != xerrors.CodeRateLimited {
				t.Fatalf("expected RATE_LIMITED, got %v", err)
			}
		})
	}
}

func TestLocalLimiterExhaustion(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"success":true,"files":[]}`))
	}, WithLimiter(rate.NewLimiter(rate.Limit(0.001), 1)))

	drive := &Drive{client: client}
	call := prepare(t, "manage_drive", map[string]any{"action": "search_files", "query": "q3"})
	if _, err := drive.Invoke(context.Background(), call); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := drive.Invoke(context.Background(), call)
	if xerrors.CodeOf(err) != xerrors.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("limited call must not reach the backend, hits=%d", n)
	}
}

func TestBackendFailureIsAdapterFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"token expired"}`))
	})
	call := prepare(t, "manage_docs", map[string]any{"action": "read_document", "document_id": "d1"})
	_, err := (&Docs{client: client}).Invoke(context.Background(), call)
	if xerrors.CodeOf(err) != xerrors.CodeAdapterFailure {
		t.Fatalf("expected ADAPTER_FAILURE, got %v", err)
	}
	if xerrors.MessageOf(err) != "token expired" {
		t.Fatalf("unexpected message: %q", xerrors.MessageOf(err))
	}

	client = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err = (&Docs{client: client}).Invoke(context.Background(), call)
	if xerrors.CodeOf(err) != xerrors.CodeAdapterFailure {
		t.Fatalf("expected ADAPTER_FAILURE, got %v", err)
	}
}

func TestServiceFormatting(t *testing.T) {
	cases := []struct {
		name    string
		tool    string
		args    map[string]any
		body    string
		invoke  func(*Client) adapter.Adapter
		contain []string
	}{
		{
			name: "search emails",
			tool: "manage_gmail",
			args: map[string]any{"action": "search_emails", "query": "invoice"},
			body: `{"success":true,"emails":[{"id":"m1","from":"a@b.c","subject":"Invoice 7"}]}`,
			invoke: func(c *Client) adapter.Adapter {
				return &Gmail{client: c}
			},
			contain: []string{"Found 1 emails", "Invoice 7", "id: m1"},
		},
		{
			name: "list events empty",
			tool: "manage_calendar",
			args: map[string]any{"action": "list_events"},
			body: `{"success":true,"events":[]}`,
			invoke: func(c *Client) adapter.Adapter {
				return &Calendar{client: c}
			},
			contain: []string{"No upcoming events."},
		},
		{
			name: "availability",
			tool: "manage_calendar",
			args: map[string]any{"action": "check_availability", "start_time": "2024-01-15T14:00:00", "end_time": "2024-01-15T15:00:00"},
			body: `{"success":true,"available":true}`,
			invoke: func(c *Client) adapter.Adapter {
				return &Calendar{client: c}
			},
			contain: []string{"free between 2024-01-15T14:00:00"},
		},
		{
			name: "create file",
			tool: "manage_drive",
			args: map[string]any{"action": "create_file", "file_name": "notes.txt", "content": "hi"},
			body: `{"success":true,"file":{"id":"f1","name":"notes.txt","webViewLink":"https://drive/f1"}}`,
			invoke: func(c *Client) adapter.Adapter {
				return &Drive{client: c}
			},
			contain: []string{"File created: notes.txt", "https://drive/f1"},
		},
		{
			name: "read range",
			tool: "manage_sheets",
			args: map[string]any{"action": "read_range", "spreadsheet_id": "s1", "range": "A1:B2"},
			body: `{"success":true,"values":[["a",1],["b",2]]}`,
			invoke: func(c *Client) adapter.Adapter {
				return &Sheets{client: c}
			},
			contain: []string{"a, 1\nb, 2"},
		},
		{
			name: "create document",
			tool: "manage_docs",
			args: map[string]any{"action": "create_document", "title": "Plan"},
			body: `{"success":true,"document":{"documentId":"d9","title":"Plan","url":"https://docs/d9"}}`,
			invoke: func(c *Client) adapter.Adapter {
				return &Docs{client: c}
			},
			contain: []string{"Document created: Plan", "ID: d9", "https://docs/d9"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			text, err := tc.invoke(client).Invoke(context.Background(), prepare(t, tc.tool, tc.args))
			if err != nil {
				t.Fatalf("invoke: %v", err)
			}
			for _, want := range tc.contain {
				if !strings.Contains(text, want) {
					t.Fatalf("expected %q in %q", want, text)
				}
			}
		})
	}
}

func TestRegisterCoversGoogleTools(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://localhost"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	set := adapter.NewSet()
	Register(set, client)
	for _, name := range []tool.Name{tool.NameGmail, tool.NameCalendar, tool.NameDrive, tool.NameSheets, tool.NameDocs} {
		if _, ok := set.Lookup(name); !ok {
			t.Fatalf("%s not registered", name)
		}
	}
	if _, err := NewClient(Config{}); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected INITIALIZATION_FAILURE, got %v", err)
	}
}

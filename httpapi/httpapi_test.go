package httpapi_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mickamy/stdb-go/httpapi"
)

// newServer starts a stub REST server and returns a client pointed at it.
func newServer(t *testing.T, handler http.HandlerFunc, opts ...httpapi.Option) *httpapi.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return httpapi.New(strings.TrimPrefix(srv.URL, "http://"), opts...)
}

func TestSchema(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/database/chat/schema" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("version"); got != "9" {
			t.Errorf("got version %q, want 9", got)
		}
		_, _ = w.Write([]byte(`{
			"tables": [{"name": "messages", "columns": [
				{"name": "text", "type": {"kind": "string"}}
			]}],
			"reducers": []
		}`))
	})

	s, err := c.Schema("chat")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, ok := s.Table("messages"); !ok {
		t.Fatal("messages table missing")
	}
}

func TestCreateIdentity(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/identity" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"identity": "c0ffee", "token": "tok"}`))
	})

	id, err := c.CreateIdentity()
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	if id.Identity != "c0ffee" || id.Token != "tok" {
		t.Fatalf("got %+v", id)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("got auth header %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}, httpapi.WithToken("secret"))

	if err := c.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, httpapi.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, httpapi.ErrUnauthorized},
		{"not found", http.StatusNotFound, httpapi.ErrNotFound},
		{"server error", http.StatusInternalServerError, httpapi.ErrServerError},
		{"teapot", http.StatusTeapot, httpapi.ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt := tt
			t.Parallel()
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.Get("/ping")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSQLAndLogs(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/database/chat/sql":
			_, _ = w.Write([]byte(`[{"rows": []}]`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/database/chat/logs":
			if got := r.URL.Query().Get("num_lines"); got != "50" {
				t.Errorf("got num_lines %q, want 50", got)
			}
			_, _ = w.Write([]byte("line1\nline2\n"))
		default:
			http.NotFound(w, r)
		}
	})

	resp, err := c.SQL("chat", "SELECT * FROM messages")
	if err != nil {
		t.Fatalf("sql: %v", err)
	}
	if resp.Status != http.StatusOK || len(resp.Body) == 0 {
		t.Fatalf("got %+v", resp)
	}

	logs, err := c.Logs("chat", 50)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(string(logs), "line1") {
		t.Fatalf("got logs %q", logs)
	}
}

func TestCallReducerJSON(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/database/chat/call/send_message" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("got content type %q, want application/json", got)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if string(body) != `["hello"]` {
			t.Errorf("got body %q", body)
		}
		w.WriteHeader(http.StatusOK)
	})

	resp, err := c.CallReducerJSON("chat", "send_message", json.RawMessage(`["hello"]`))
	if err != nil {
		t.Fatalf("call reducer: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.Status)
	}
}

func TestPublishDatabase(t *testing.T) {
	t.Parallel()

	module := []byte{0x00, 0x61, 0x73, 0x6D} // wasm magic
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/database/chat" {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if string(body) != string(module) {
			t.Errorf("got body % X", body)
		}
		_, _ = w.Write([]byte(`{"address": "c0ffee"}`))
	})

	resp, err := c.PublishDatabase("chat", module)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if resp.Status != http.StatusOK || len(resp.Body) == 0 {
		t.Fatalf("got %+v", resp)
	}
}

func TestInvalidResponse(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	_, err := c.CreateIdentity()
	if !errors.Is(err, httpapi.ErrInvalidResponse) {
		t.Fatalf("got %v, want ErrInvalidResponse", err)
	}
}

func TestConnectionFailed(t *testing.T) {
	t.Parallel()

	c := httpapi.New("127.0.0.1:1") // nothing listens here
	err := c.Ping()
	if !errors.Is(err, httpapi.ErrConnectionFailed) {
		t.Fatalf("got %v, want ErrConnectionFailed", err)
	}
}

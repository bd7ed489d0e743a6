package forward

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/getburrow/burrow/pkg/relay"
)

func TestMapMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"GET", "GET", false},
		{"get", "GET", false},
		{"Get", "GET", false},
		{"POST", "POST", false},
		{"post", "POST", false},
		{"PUT", "PUT", false},
		{"pUt", "PUT", false},
		{"DELETE", "DELETE", false},
		{"delete", "DELETE", false},
		{"OPTIONS", "OPTIONS", false},
		{"options", "OPTIONS", false},
		{"PATCH", "", true},
		{"HEAD", "", true},
		{"TRACE", "", true},
		{"CONNECT", "", true},
		{"BREW", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := MapMethod(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedMethod) {
				t.Errorf("MapMethod(%q) error = %v, want ErrUnsupportedMethod", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("MapMethod(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("MapMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripRoutingSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/machineA/foo/bar?x=1", "/foo/bar?x=1"},
		{"/machineA/foo/bar", "/foo/bar"},
		{"/machineA/foo", "/foo"},
		{"/machineA", "/"},
		{"/machineA?x=1", "/?x=1"},
		{"/machineA/", "/"},
		{"/machineA/?y=2", "/?y=2"},
		{"/a/b/c/d", "/b/c/d"},
		{"/", "/"},
		{"", "/"},
		{"/t/deep/path?q=a&q=b", "/deep/path?q=a&q=b"},
	}

	for _, tt := range tests {
		if got := StripRoutingSegment(tt.in); got != tt.want {
			t.Errorf("StripRoutingSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewTranslatorValidatesBase(t *testing.T) {
	tests := []struct {
		base    string
		wantErr bool
	}{
		{"http://localhost:8080", false},
		{"http://localhost:8080/", false},
		{"https://svc.internal:9443/app/", false},
		{"localhost:8080", true},
		{"", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		_, err := NewTranslator(tt.base)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewTranslator(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
		}
	}
}

func TestTranslateURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"segment stripped", "http://localhost:8080", "/machineA/foo/bar?x=1", "http://localhost:8080/foo/bar?x=1"},
		{"trailing slash normalized", "http://localhost:8080/", "/machineA/foo/bar?x=1", "http://localhost:8080/foo/bar?x=1"},
		{"root after strip", "http://localhost:8080", "/machineA", "http://localhost:8080/"},
		{"query survives root strip", "http://localhost:8080", "/machineA?debug=1", "http://localhost:8080/?debug=1"},
		{"base with path", "http://localhost:8080/app/", "/t/v1/users", "http://localhost:8080/app/v1/users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTranslator(tt.base)
			if err != nil {
				t.Fatalf("NewTranslator(%q): %v", tt.base, err)
			}

			req, _, err := tr.Translate(context.Background(), &relay.Request{Method: "GET", Path: tt.path})
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if got := req.URL.String(); got != tt.want {
				t.Errorf("forwarded URL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranslateUnsupportedMethodNoRequest(t *testing.T) {
	tr, err := NewTranslator("http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}

	req, _, err := tr.Translate(context.Background(), &relay.Request{Method: "PATCH", Path: "/t/x"})
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("error = %v, want ErrUnsupportedMethod", err)
	}
	if req != nil {
		t.Error("no partially constructed request may be returned on failure")
	}
}

func TestTranslateBody(t *testing.T) {
	tr, err := NewTranslator("http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}

	in := &relay.Request{
		Method: "POST",
		Path:   "/t/orders",
		Body:   []byte(`{"qty":3}`),
		Headers: []relay.HeaderPair{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "Content-Length", Value: "999"},
		},
	}

	req, bodyText, err := tr.Translate(context.Background(), in)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if bodyText != `{"qty":3}` {
		t.Errorf("retained body text = %q", bodyText)
	}
	if req.ContentLength != int64(len(in.Body)) {
		t.Errorf("ContentLength = %d, want %d (buffered length wins over the declared header)", req.ContentLength, len(in.Body))
	}
	if got := req.Header.Get("Content-Length"); got != "" {
		t.Errorf("Content-Length must not land in the header collection, got %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != `{"qty":3}` {
		t.Errorf("attached body = %q", data)
	}
}

func TestTranslateNoBody(t *testing.T) {
	tr, err := NewTranslator("http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}

	req, bodyText, err := tr.Translate(context.Background(), &relay.Request{Method: "GET", Path: "/t/x"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if bodyText != "" {
		t.Errorf("body text = %q, want empty", bodyText)
	}
	if req.Body != nil {
		t.Error("request with no inbound body must carry no body reader")
	}
}

func TestTranslateHeaderPlacement(t *testing.T) {
	tr, err := NewTranslator("http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}

	in := &relay.Request{
		Method: "GET",
		Path:   "/t/x",
		Headers: []relay.HeaderPair{
			{Name: "Host", Value: "public.example.com"},
			{Name: "Accept", Value: "text/html"},
			{Name: "Accept", Value: "application/json"},
			{Name: "X-Custom", Value: "one"},
		},
	}

	req, _, err := tr.Translate(context.Background(), in)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if req.Host != "public.example.com" {
		t.Errorf("Host = %q, want dedicated placement on the request", req.Host)
	}
	if got := req.Header.Values("Accept"); len(got) != 2 || got[0] != "text/html" || got[1] != "application/json" {
		t.Errorf("Accept values = %v, want both in pair order", got)
	}
	if got := req.Header.Get("X-Custom"); got != "one" {
		t.Errorf("X-Custom = %q", got)
	}
}

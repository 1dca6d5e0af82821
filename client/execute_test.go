package client_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quicpulse/quicpulse/auth"
	"github.com/quicpulse/quicpulse/client"
	"github.com/quicpulse/quicpulse/request"
	"github.com/quicpulse/quicpulse/status"
)

func newPlan(t *testing.T, method, rawURL string, body []byte) *client.Plan {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return &client.Plan{
		Method:  method,
		URL:     u,
		Headers: &request.Headers{},
		Body:    body,
	}
}

func TestExecute_SimpleGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c, err := client.New(client.Options{})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Execute(context.Background(), newPlan(t, "GET", srv.URL, nil))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()
	if resp.Status != 200 {
		t.Errorf("status = %d", resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestExecute_RedirectDemotesPOSTToGET(t *testing.T) {
	var gotMethod, gotBody string
	var gotContentLength []string
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentLength = r.Header.Values("Content-Length")
		w.WriteHeader(200)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := client.New(client.Options{FollowRedirects: true, MaxRedirects: 5})
	plan := newPlan(t, "POST", srv.URL+"/a", []byte(`{"x":1}`))
	plan.ContentType = "application/json"
	resp, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()

	if gotMethod != "GET" {
		t.Errorf("redirected method = %q, want GET", gotMethod)
	}
	if gotBody != "" {
		t.Errorf("redirected body = %q, want empty", gotBody)
	}
	if len(gotContentLength) != 0 {
		t.Errorf("Content-Length should be absent, got %v", gotContentLength)
	}
	if len(resp.Intermediates) != 1 || resp.Intermediates[0].Status != 302 {
		t.Errorf("intermediates = %+v", resp.Intermediates)
	}
}

func TestExecute_307PreservesMethodAndBody(t *testing.T) {
	var gotMethod, gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := client.New(client.Options{FollowRedirects: true, MaxRedirects: 5})
	resp, err := c.Execute(context.Background(), newPlan(t, "POST", srv.URL+"/a", []byte("payload")))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()

	if gotMethod != "POST" || gotBody != "payload" {
		t.Errorf("got %s %q, want POST payload", gotMethod, gotBody)
	}
}

func TestExecute_NoFollowReturnsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	c, _ := client.New(client.Options{})
	resp, err := c.Execute(context.Background(), newPlan(t, "GET", srv.URL, nil))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()
	if resp.Status != 301 {
		t.Errorf("status = %d, want 301", resp.Status)
	}
}

func TestExecute_MaxRedirectsExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	c, _ := client.New(client.Options{FollowRedirects: true, MaxRedirects: 3})
	_, err := c.Execute(context.Background(), newPlan(t, "GET", srv.URL+"/a", nil))
	if err == nil {
		t.Fatal("expected redirect-limit error")
	}
	if !strings.Contains(err.Error(), "redirects") {
		t.Errorf("error = %v", err)
	}
}

func TestExecute_DigestRetry(t *testing.T) {
	var requests int
	var secondAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", `Digest realm="x", nonce="abc", qop="auth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		secondAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := client.New(client.Options{})
	plan := newPlan(t, "GET", srv.URL+"/protected", nil)
	plan.AuthType = auth.TypeDigest
	plan.Creds = auth.Credentials{Username: "user", Password: "pass"}
	resp, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()

	if requests != 2 {
		t.Errorf("requests = %d, want exactly 2", requests)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d", resp.Status)
	}
	if !strings.HasPrefix(secondAuth, "Digest ") ||
		!strings.Contains(secondAuth, "nc=00000001") ||
		!strings.Contains(secondAuth, "response=") {
		t.Errorf("second Authorization = %q", secondAuth)
	}
}

func TestExecute_SecondDigest401NotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("WWW-Authenticate", `Digest realm="x", nonce="abc", qop="auth"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := client.New(client.Options{})
	plan := newPlan(t, "GET", srv.URL, nil)
	plan.AuthType = auth.TypeDigest
	plan.Creds = auth.Credentials{Username: "u", Password: "p"}
	resp, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()

	if requests != 2 {
		t.Errorf("requests = %d, want 2 (no second retry)", requests)
	}
	if resp.Status != 401 {
		t.Errorf("status = %d, want 401 reported", resp.Status)
	}
}

func TestExecute_CrossOriginRedirectDropsAuthorization(t *testing.T) {
	var crossOriginAuth string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		crossOriginAuth = r.Header.Get("Authorization")
	}))
	defer target.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer origin.Close()

	c, _ := client.New(client.Options{FollowRedirects: true, MaxRedirects: 5})
	plan := newPlan(t, "GET", origin.URL, nil)
	plan.AuthType = auth.TypeBasic
	plan.Creds = auth.Credentials{Username: "u", Password: "p"}
	resp, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()

	if crossOriginAuth != "" {
		t.Errorf("Authorization leaked across origins: %q", crossOriginAuth)
	}
}

func TestExecute_TimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c, _ := client.New(client.Options{Timeout: 100 * time.Millisecond})
	_, err := c.Execute(context.Background(), newPlan(t, "GET", srv.URL, nil))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if status.KindOf(err) != status.KindTimeout {
		t.Errorf("kind = %v, want timeout", status.KindOf(err))
	}
}

func TestExecute_ConnectionRefusedClassified(t *testing.T) {
	// Grab a port that is then closed again.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c, _ := client.New(client.Options{})
	_, err = c.Execute(context.Background(), newPlan(t, "GET", "http://"+addr, nil))
	if err == nil {
		t.Fatal("expected connection error")
	}
	if status.KindOf(err) != status.KindConnection {
		t.Errorf("kind = %v, want connection", status.KindOf(err))
	}
}

func TestExecute_UnixSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "svc.sock")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	var gotHost string
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
	})}
	go server.Serve(l)
	defer server.Close()

	c, _ := client.New(client.Options{UnixSocket: sock})
	resp, err := c.Execute(context.Background(), newPlan(t, "GET", "http://localhost/info", nil))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"path":"/info"}` {
		t.Errorf("body = %s", body)
	}
	if gotHost != "localhost" {
		t.Errorf("Host = %q, want localhost default", gotHost)
	}
}

func TestExecute_UnixSocketPostBody(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "svc.sock")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	var gotBody string
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	})}
	go server.Serve(l)
	defer server.Close()

	c, _ := client.New(client.Options{UnixSocket: sock})
	plan := newPlan(t, "POST", "http://localhost/create", []byte(`{"a":1}`))
	resp, err := c.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	defer resp.Body.Close()
	if gotBody != `{"a":1}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestProxyTable_Rotation(t *testing.T) {
	table, err := client.NewProxyTable([]string{
		"http:http://proxy1:3128",
		"http:http://proxy2:3128",
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("GET", "http://example.com/", nil)
	first, _ := table.ProxyFor(req)
	second, _ := table.ProxyFor(req)
	third, _ := table.ProxyFor(req)
	if first.Host != "proxy1:3128" || second.Host != "proxy2:3128" || third.Host != "proxy1:3128" {
		t.Errorf("rotation = %v %v %v", first, second, third)
	}
}

func TestProxyTable_SocksFallback(t *testing.T) {
	table, err := client.NewProxyTable(nil, "socks5://127.0.0.1:1080")
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("GET", "https://example.com/", nil)
	u, _ := table.ProxyFor(req)
	if u == nil || u.Scheme != "socks5" {
		t.Errorf("got %v", u)
	}
}

func TestExecute_HTTP3RequiresHTTPS(t *testing.T) {
	c, _ := client.New(client.Options{HTTP3: true})
	_, err := c.Execute(context.Background(), newPlan(t, "GET", "http://example.com/", nil))
	if err == nil {
		t.Fatal("expected error for HTTP/3 over http://")
	}
	if status.KindOf(err) != status.KindArgument {
		t.Errorf("kind = %v", status.KindOf(err))
	}
}

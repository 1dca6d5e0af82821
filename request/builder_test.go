package request_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quicpulse/quicpulse/input"
	"github.com/quicpulse/quicpulse/request"
)

func TestFromItems_JSONBody(t *testing.T) {
	items := []input.Item{
		input.DataField{DataKey: "name", Value: "John"},
		input.JSONField{JSONKey: "age", Value: []byte("30")},
	}
	cfg, err := request.FromItems(items, true)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	if cfg.Kind != request.BodyJSON {
		t.Fatalf("Kind = %v, want BodyJSON", cfg.Kind)
	}
	b, err := cfg.JSONBytes()
	if err != nil {
		t.Fatalf("JSONBytes error: %v", err)
	}
	if string(b) != `{"age":30,"name":"John"}` {
		t.Errorf("body = %s", b)
	}
}

func TestFromItems_FormBody(t *testing.T) {
	items := []input.Item{
		input.DataField{DataKey: "username", Value: "john"},
		input.DataField{DataKey: "password", Value: "secret"},
	}
	cfg, err := request.FromItems(items, false)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	if cfg.Kind != request.BodyForm {
		t.Fatalf("Kind = %v, want BodyForm", cfg.Kind)
	}
	if got := string(cfg.FormBytes()); got != "username=john&password=secret" {
		t.Errorf("form = %q", got)
	}
}

func TestFromItems_HeaderOrderAndDuplicates(t *testing.T) {
	items := []input.Item{
		input.Header{Name: "Content-Type", Value: "application/json"},
		input.Header{Name: "X-Custom", Value: "value1"},
		input.Header{Name: "X-Custom", Value: "value2"},
	}
	cfg, err := request.FromItems(items, true)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	var keys, values []string
	cfg.Headers.Each(func(k, v string) {
		keys = append(keys, k)
		values = append(values, v)
	})
	wantKeys := []string{"Content-Type", "X-Custom", "X-Custom"}
	wantValues := []string{"application/json", "value1", "value2"}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] || values[i] != wantValues[i] {
			t.Fatalf("entry %d = %s:%s, want %s:%s", i, keys[i], values[i], wantKeys[i], wantValues[i])
		}
	}
}

func TestFromItems_QueryParams(t *testing.T) {
	items := []input.Item{
		input.QueryParam{Name: "page", Value: "1"},
		input.QueryParam{Name: "limit", Value: "10"},
	}
	cfg, err := request.FromItems(items, true)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	if got := cfg.QueryString(); got != "page=1&limit=10" {
		t.Errorf("query = %q", got)
	}
	if cfg.Kind != request.BodyNone {
		t.Errorf("query-only request should have no body")
	}
}

func TestFromItems_FilesForceMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.txt")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	items := []input.Item{
		input.DataField{DataKey: "note", Value: "hello"},
		input.FileUpload{Field: "doc", Path: path},
	}
	cfg, err := request.FromItems(items, false)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	if cfg.Kind != request.BodyMultipart {
		t.Fatalf("Kind = %v, want BodyMultipart", cfg.Kind)
	}
	body, ctype, err := cfg.EncodeMultipart("")
	if err != nil {
		t.Fatalf("EncodeMultipart error: %v", err)
	}
	if !strings.HasPrefix(ctype, "multipart/form-data; boundary=") {
		t.Errorf("content type = %q", ctype)
	}
	if !bytes.Contains(body, []byte("payload")) {
		t.Error("file content missing from multipart body")
	}
	if !bytes.Contains(body, []byte(`name="note"`)) {
		t.Error("text part missing from multipart body")
	}
}

func TestFromItems_UserBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	os.WriteFile(path, []byte{1, 2, 3}, 0o644)
	cfg, err := request.FromItems([]input.Item{input.FileUpload{Field: "f", Path: path}}, false)
	if err != nil {
		t.Fatal(err)
	}
	_, ctype, err := cfg.EncodeMultipart("fixedboundary123")
	if err != nil {
		t.Fatalf("EncodeMultipart error: %v", err)
	}
	if !strings.Contains(ctype, "boundary=fixedboundary123") {
		t.Errorf("content type = %q", ctype)
	}
}

func TestFromItems_RootArrayOutsideJSONMode(t *testing.T) {
	items := []input.Item{
		input.JSONField{JSONKey: "[0]", Value: []byte(`"a"`)},
		input.JSONField{JSONKey: "[1]", Value: []byte(`"b"`)},
	}
	cfg, err := request.FromItems(items, false)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	if cfg.Kind != request.BodyJSON {
		t.Fatalf("Kind = %v, want BodyJSON", cfg.Kind)
	}
	b, _ := cfg.JSONBytes()
	if string(b) != `["a","b"]` {
		t.Errorf("body = %s", b)
	}
}

func TestFromItems_HeaderFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.txt")
	os.WriteFile(path, []byte("secret-token\n"), 0o644)
	cfg, err := request.FromItems([]input.Item{input.HeaderFile{Name: "X-Token", Path: path}}, true)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	if got := cfg.Headers.Get("X-Token"); got != "secret-token" {
		t.Errorf("header = %q (trailing whitespace should be trimmed)", got)
	}
}

func TestFromItems_JSONFieldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")
	os.WriteFile(path, []byte(`{"k":[1,2]}`), 0o644)
	cfg, err := request.FromItems([]input.Item{input.JSONFieldFile{JSONKey: "meta", Path: path}}, true)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	b, _ := cfg.JSONBytes()
	if string(b) != `{"meta":{"k":[1,2]}}` {
		t.Errorf("body = %s", b)
	}
}

func TestRandomBoundary(t *testing.T) {
	b1 := request.RandomBoundary()
	b2 := request.RandomBoundary()
	if len(b1) != 40 {
		t.Errorf("boundary length = %d, want 40", len(b1))
	}
	if b1 == b2 {
		t.Error("boundaries should be random")
	}
}

func TestJSONNumberFidelity(t *testing.T) {
	items := []input.Item{input.JSONField{JSONKey: "n", Value: []byte("30")}}
	cfg, _ := request.FromItems(items, true)
	b, _ := cfg.JSONBytes()
	var decoded map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["n"].String() != "30" {
		t.Errorf("number mangled: %s", decoded["n"])
	}
}

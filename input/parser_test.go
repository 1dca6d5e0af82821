package input_test

import (
	"testing"

	"github.com/quicpulse/quicpulse/input"
)

func TestParse_SeparatorClasses(t *testing.T) {
	tests := []struct {
		token string
		want  input.Item
	}{
		{"X-Foo:bar", input.Header{Name: "X-Foo", Value: "bar"}},
		{"X-Empty;", input.EmptyHeader{Name: "X-Empty"}},
		{"X-File:@./token.txt", input.HeaderFile{Name: "X-File", Path: "./token.txt"}},
		{"page==1", input.QueryParam{Name: "page", Value: "1"}},
		{"q==@query.txt", input.QueryParamFile{Name: "q", Path: "query.txt"}},
		{"name=John", input.DataField{DataKey: "name", Value: "John"}},
		{"bio=@bio.txt", input.DataFieldFile{DataKey: "bio", Path: "bio.txt"}},
		{"age:=30", input.JSONField{JSONKey: "age", Value: []byte("30")}},
		{"meta:=@meta.json", input.JSONFieldFile{JSONKey: "meta", Path: "meta.json"}},
		{"avatar@photo.png", input.FileUpload{Field: "avatar", Path: "photo.png"}},
	}
	for _, tt := range tests {
		got, err := input.Parse(tt.token)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.token, err)
		}
		switch want := tt.want.(type) {
		case input.JSONField:
			jf, ok := got.(input.JSONField)
			if !ok {
				t.Errorf("Parse(%q): got %T, want JSONField", tt.token, got)
				continue
			}
			if jf.JSONKey != want.JSONKey || string(jf.Value) != string(want.Value) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.token, jf, want)
			}
		default:
			if got != tt.want {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.token, got, tt.want)
			}
		}
	}
}

func TestParse_LongestSeparatorWins(t *testing.T) {
	// "==" must classify as a query param, not a data field with "=value".
	it, err := input.Parse("page==1")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, ok := it.(input.QueryParam); !ok {
		t.Errorf("got %T, want QueryParam", it)
	}

	// ":=@" must win over ":=" and ":".
	it, err = input.Parse("data:=@file.json")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, ok := it.(input.JSONFieldFile); !ok {
		t.Errorf("got %T, want JSONFieldFile", it)
	}
}

func TestParse_ValueSeparatorsAreLiteral(t *testing.T) {
	it, err := input.Parse("X-Time:12:30:00")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	h, ok := it.(input.Header)
	if !ok {
		t.Fatalf("got %T, want Header", it)
	}
	if h.Value != "12:30:00" {
		t.Errorf("Value = %q, want 12:30:00", h.Value)
	}
}

func TestParse_LeadingSeparatorIsError(t *testing.T) {
	for _, token := range []string{"=foo", ":bar", "==baz", "@file"} {
		if _, err := input.Parse(token); err == nil {
			t.Errorf("Parse(%q): expected error", token)
		}
	}
}

func TestParse_InvalidJSONValue(t *testing.T) {
	if _, err := input.Parse("age:=notjson"); err == nil {
		t.Error("expected error for invalid JSON value")
	}
}

func TestParse_NoSeparator(t *testing.T) {
	if _, err := input.Parse("plaintoken"); err == nil {
		t.Error("expected error for token without separator")
	}
}

func TestParse_UnicodeKeysAndValues(t *testing.T) {
	it, err := input.Parse("名前=太郎")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	d, ok := it.(input.DataField)
	if !ok {
		t.Fatalf("got %T, want DataField", it)
	}
	if d.DataKey != "名前" || d.Value != "太郎" {
		t.Errorf("got %+v", d)
	}
}

func TestParse_FileUploadAttributes(t *testing.T) {
	it, err := input.Parse("doc@report.bin;type=application/pdf;filename=report.pdf")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	up, ok := it.(input.FileUpload)
	if !ok {
		t.Fatalf("got %T, want FileUpload", it)
	}
	if up.Path != "report.bin" || up.MimeType != "application/pdf" || up.Filename != "report.pdf" {
		t.Errorf("got %+v", up)
	}
}

func TestParse_EmptyHeaderRequiresEmptyValue(t *testing.T) {
	if _, err := input.Parse("X-Foo;trailing"); err == nil {
		t.Error("expected error when content follows the empty-header marker")
	}
}

func TestItemPredicates(t *testing.T) {
	if !input.IsData(input.DataField{DataKey: "k", Value: "v"}) {
		t.Error("DataField should be data")
	}
	if !input.IsData(input.FileUpload{Field: "f", Path: "p"}) {
		t.Error("FileUpload should be data")
	}
	if input.IsData(input.Header{Name: "n", Value: "v"}) {
		t.Error("Header should not be data")
	}
	if !input.IsHeader(input.EmptyHeader{Name: "n"}) {
		t.Error("EmptyHeader should be a header")
	}
	if !input.IsQuery(input.QueryParam{Name: "n", Value: "v"}) {
		t.Error("QueryParam should be a query item")
	}
	if !input.RequiresFileRead(input.JSONFieldFile{JSONKey: "k", Path: "p"}) {
		t.Error("JSONFieldFile should require a file read")
	}
}

func TestLooksLikeMethod(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"GET", true},
		{"POST", true},
		{"CUSTOM", true},
		{"get", false},
		{"Get", false},
		{"LOCALHOST", false},
		{"", false},
		{"VERYLONGMETHODNAME", false},
	}
	for _, tt := range tests {
		if got := input.LooksLikeMethod(tt.s); got != tt.want {
			t.Errorf("LooksLikeMethod(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestInferMethod(t *testing.T) {
	if input.InferMethod(false) != "GET" {
		t.Error("no data should infer GET")
	}
	if input.InferMethod(true) != "POST" {
		t.Error("data should infer POST")
	}
}

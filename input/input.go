// Package input parses positional request items into typed variants.
//
// A request item is a single CLI token such as "name=John", "X-Foo:bar" or
// "avatar@photo.png".  The parser classifies each token immediately, so the
// rest of the pipeline can switch exhaustively on concrete types instead of
// re-inspecting strings at every use site.
package input

import "encoding/json"

// Item is the closed set of parsed request-item variants.  Exactly one
// concrete type in this package implements it per separator class.
type Item interface {
	// Key returns the header name, field key, or upload field of the item.
	Key() string

	item()
}

// Header is an HTTP header: "Name:Value".
type Header struct {
	Name  string
	Value string
}

// EmptyHeader is a header sent with an empty value: "Name;".
type EmptyHeader struct {
	Name string
}

// HeaderFile is a header whose value is read from a file: "Name:@path".
type HeaderFile struct {
	Name string
	Path string
}

// QueryParam is a URL query parameter: "name==value".
type QueryParam struct {
	Name  string
	Value string
}

// QueryParamFile is a query parameter read from a file: "name==@path".
type QueryParamFile struct {
	Name string
	Path string
}

// DataField is a body field: "key=value".  In JSON mode it becomes a string
// member of the JSON body; in form mode a urlencoded pair.
type DataField struct {
	DataKey string
	Value   string
}

// DataFieldFile is a body field read from a file: "key=@path".
type DataFieldFile struct {
	DataKey string
	Path    string
}

// JSONField is a typed JSON field: "key:=value".  The value has already been
// parsed as JSON (number, bool, object, array, null).
type JSONField struct {
	JSONKey string
	Value   json.RawMessage
}

// JSONFieldFile is a JSON field whose value is read from a file: "key:=@path".
type JSONFieldFile struct {
	JSONKey string
	Path    string
}

// FileUpload is a multipart file upload:
// "field@path" or "field@path;type=mime;filename=name".
type FileUpload struct {
	Field    string
	Path     string
	MimeType string
	Filename string
}

func (h Header) Key() string         { return h.Name }
func (h EmptyHeader) Key() string    { return h.Name }
func (h HeaderFile) Key() string     { return h.Name }
func (q QueryParam) Key() string     { return q.Name }
func (q QueryParamFile) Key() string { return q.Name }
func (d DataField) Key() string      { return d.DataKey }
func (d DataFieldFile) Key() string  { return d.DataKey }
func (j JSONField) Key() string      { return j.JSONKey }
func (j JSONFieldFile) Key() string  { return j.JSONKey }
func (f FileUpload) Key() string     { return f.Field }

func (Header) item()         {}
func (EmptyHeader) item()    {}
func (HeaderFile) item()     {}
func (QueryParam) item()     {}
func (QueryParamFile) item() {}
func (DataField) item()      {}
func (DataFieldFile) item()  {}
func (JSONField) item()      {}
func (JSONFieldFile) item()  {}
func (FileUpload) item()     {}

// IsData reports whether the item contributes request data.  Data items flip
// the inferred method from GET to POST.
func IsData(it Item) bool {
	switch it.(type) {
	case DataField, DataFieldFile, JSONField, JSONFieldFile, FileUpload:
		return true
	}
	return false
}

// IsHeader reports whether the item sets a header.
func IsHeader(it Item) bool {
	switch it.(type) {
	case Header, EmptyHeader, HeaderFile:
		return true
	}
	return false
}

// IsQuery reports whether the item adds a query parameter.
func IsQuery(it Item) bool {
	switch it.(type) {
	case QueryParam, QueryParamFile:
		return true
	}
	return false
}

// RequiresFileRead reports whether resolving the item touches the filesystem.
func RequiresFileRead(it Item) bool {
	switch it.(type) {
	case HeaderFile, QueryParamFile, DataFieldFile, JSONFieldFile, FileUpload:
		return true
	}
	return false
}

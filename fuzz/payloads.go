// Package fuzz is the security-fuzzing driver: it substitutes payloads from
// categorized dictionaries into request body fields and classifies the
// responses, using the same bounded-concurrency pattern as the benchmark
// driver.
package fuzz

import (
	"bufio"
	"os"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// Category groups payloads by the weakness they probe.
type Category string

const (
	CategorySQL      Category = "sql"
	CategoryXSS      Category = "xss"
	CategoryCmd      Category = "cmd"
	CategoryPath     Category = "path"
	CategoryBoundary Category = "boundary"
	CategoryType     Category = "type"
	CategoryFormat   Category = "format"
	CategoryInt      Category = "int"
	CategoryUnicode  Category = "unicode"
	CategoryNoSQL    Category = "nosql"
	CategoryCustom   Category = "custom"
)

// ParseCategory maps the CLI spellings onto a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(s) {
	case "sql", "sqli":
		return CategorySQL, nil
	case "xss":
		return CategoryXSS, nil
	case "cmd", "command":
		return CategoryCmd, nil
	case "path", "traversal":
		return CategoryPath, nil
	case "boundary", "bound":
		return CategoryBoundary, nil
	case "type", "confusion":
		return CategoryType, nil
	case "format", "fmt":
		return CategoryFormat, nil
	case "int", "integer", "overflow":
		return CategoryInt, nil
	case "unicode", "uni":
		return CategoryUnicode, nil
	case "nosql", "mongo":
		return CategoryNoSQL, nil
	case "custom":
		return CategoryCustom, nil
	}
	return "", status.Errorf(status.KindArgument, "unknown fuzz category %q", s)
}

// Payload is one fuzz input with its risk weighting (1 = benign probe,
// 5 = likely to break a vulnerable handler).
type Payload struct {
	Value    string
	Category Category
	Risk     int
}

// builtins is the default dictionary, ordered by category.
var builtins = []Payload{
	// SQL injection
	{`'`, CategorySQL, 1},
	{`''`, CategorySQL, 1},
	{`' OR '1'='1`, CategorySQL, 3},
	{`" OR "1"="1`, CategorySQL, 3},
	{`'; DROP TABLE users--`, CategorySQL, 5},
	{`1' AND SLEEP(5)--`, CategorySQL, 4},
	{`' UNION SELECT NULL--`, CategorySQL, 4},

	// Cross-site scripting
	{`<script>alert(1)</script>`, CategoryXSS, 3},
	{`"><img src=x onerror=alert(1)>`, CategoryXSS, 3},
	{`javascript:alert(1)`, CategoryXSS, 2},
	{`'"><svg onload=alert(1)>`, CategoryXSS, 4},

	// Command injection
	{`; ls`, CategoryCmd, 3},
	{`| id`, CategoryCmd, 3},
	{"`id`", CategoryCmd, 4},
	{`$(id)`, CategoryCmd, 4},
	{`& ping -c 1 127.0.0.1 &`, CategoryCmd, 4},

	// Path traversal
	{`../../../etc/passwd`, CategoryPath, 3},
	{`..\..\..\windows\system32\config\sam`, CategoryPath, 3},
	{`%2e%2e%2f%2e%2e%2fetc%2fpasswd`, CategoryPath, 4},

	// Boundary values
	{``, CategoryBoundary, 1},
	{` `, CategoryBoundary, 1},
	{strings.Repeat("A", 1024), CategoryBoundary, 2},
	{strings.Repeat("A", 65536), CategoryBoundary, 3},
	{"null", CategoryBoundary, 1},
	{"undefined", CategoryBoundary, 1},

	// Type confusion
	{`true`, CategoryType, 1},
	{`[]`, CategoryType, 2},
	{`{}`, CategoryType, 2},
	{`[{"a":1}]`, CategoryType, 2},

	// Format strings
	{`%s%s%s%s`, CategoryFormat, 3},
	{`%n%n%n`, CategoryFormat, 4},
	{`{{7*7}}`, CategoryFormat, 3},
	{`${7*7}`, CategoryFormat, 3},

	// Integer overflow
	{`2147483648`, CategoryInt, 2},
	{`-2147483649`, CategoryInt, 2},
	{`9223372036854775808`, CategoryInt, 3},
	{`-1`, CategoryInt, 1},
	{`0`, CategoryInt, 1},
	{`1e309`, CategoryInt, 3},

	// Unicode
	{`ＡＢＣ`, CategoryUnicode, 1},
	{"A B", CategoryUnicode, 3},
	{"‮gnp.exe", CategoryUnicode, 3},
	{`𝕬𝖉𝖒𝖎𝖓`, CategoryUnicode, 2},

	// NoSQL injection
	{`{"$gt":""}`, CategoryNoSQL, 3},
	{`{"$ne":null}`, CategoryNoSQL, 3},
	{`{"$where":"sleep(100)"}`, CategoryNoSQL, 5},
}

// Builtin returns the payloads matching the category filter (nil = all) at
// or above minRisk.
func Builtin(categories []Category, minRisk int) []Payload {
	var out []Payload
	for _, p := range builtins {
		if p.Risk < minRisk {
			continue
		}
		if len(categories) > 0 && !containsCategory(categories, p.Category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func containsCategory(cats []Category, c Category) bool {
	for _, x := range cats {
		if x == c {
			return true
		}
	}
	return false
}

// LoadDictionary reads a newline-delimited payload file into CUSTOM
// payloads at risk 3.  Blank lines and '#' comments are skipped.
func LoadDictionary(path string) ([]Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, status.Wrap(status.KindIO, err, "open fuzz dictionary "+path)
	}
	defer f.Close()

	var out []Payload
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Payload{Value: line, Category: CategoryCustom, Risk: 3})
	}
	if err := scanner.Err(); err != nil {
		return nil, status.Wrap(status.KindIO, err, "read fuzz dictionary "+path)
	}
	return out, nil
}

// CustomPayloads wraps --fuzz-payload values as CUSTOM payloads.
func CustomPayloads(values []string) []Payload {
	out := make([]Payload, 0, len(values))
	for _, v := range values {
		out = append(out, Payload{Value: v, Category: CategoryCustom, Risk: 3})
	}
	return out
}

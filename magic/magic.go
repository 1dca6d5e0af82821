// Package magic expands {name[:args]} template tags into generated values
// before request building.
//
// Supported tags include {uuid}, {uuid7}, {now}, {now:FMT}, {timestamp},
// {timestamp_ms}, {random_int}, {random_int:MIN:MAX}, {random_float},
// {random_string:N}, {random_hex:N}, {random_bytes:N}, {env:NAME},
// {pick:a,b,c}, {seq}, {seq:START}, {email}, {first_name}, {last_name},
// {full_name} and {lorem:N}.  Unknown names are left untouched so literal
// braces survive expansion.
package magic

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	mrand "math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// tagRE matches a single magic tag: {name} or {name:args}.  Names are fixed
// to lowercase identifiers so JSON snippets like {"a":1} never match.
var tagRE = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)(?::([^}]*))?\}`)

// maxDepth bounds the fixpoint iteration so tags that expand into further
// tags cannot recurse forever.
const maxDepth = 10

// Result describes one expansion pass over a string.
type Result struct {
	// Value is the fully expanded string.
	Value string
	// HadMagic reports whether at least one tag was expanded.
	HadMagic bool
	// Generated maps each expanded tag to the value it produced, for
	// verbose logging.
	Generated map[string]string
}

// Expander generates magic values.  Each workflow or driver run should own
// its own Expander so sequence counters never interleave across runs; the
// package-level Expand uses a shared process-wide instance.
type Expander struct {
	seq atomic.Uint64
}

// NewExpander returns an Expander with a fresh sequence counter.
func NewExpander() *Expander {
	return &Expander{}
}

var defaultExpander = NewExpander()

// Expand expands all magic tags in s using the process-wide expander.
func Expand(s string) Result {
	return defaultExpander.Expand(s)
}

// HasMagic reports whether s contains at least one magic tag.
func HasMagic(s string) bool {
	return tagRE.MatchString(s)
}

// ResetSeq resets the sequence counter.  Call between workflow runs when
// reproducible {seq} values are needed.
func (e *Expander) ResetSeq() {
	e.seq.Store(0)
}

// Expand replaces every magic tag in s, iterating until no tag remains or
// the depth cap is reached, so values that themselves contain tags are
// absorbed.  Expansion is a fixpoint: expanding an already-expanded string
// is the identity once no tag remains.
func (e *Expander) Expand(s string) Result {
	res := Result{Value: s, Generated: make(map[string]string)}
	for depth := 0; depth < maxDepth; depth++ {
		matches := tagRE.FindAllStringSubmatch(res.Value, -1)
		if len(matches) == 0 {
			break
		}
		replaced := false
		for _, m := range matches {
			full, name := m[0], m[1]
			var args string
			hasArgs := strings.Contains(full, ":")
			if hasArgs {
				args = m[2]
			}
			value, ok := e.generate(name, args, hasArgs)
			if !ok {
				continue
			}
			res.Value = strings.Replace(res.Value, full, value, 1)
			res.Generated[full] = value
			res.HadMagic = true
			replaced = true
		}
		if !replaced {
			break
		}
	}
	return res
}

// generate produces the value for a single tag.  ok is false for unknown
// names and malformed arguments, in which case the tag is left in place.
func (e *Expander) generate(name, args string, hasArgs bool) (value string, ok bool) {
	switch name {
	case "uuid", "uuid4":
		return uuid.NewString(), true
	case "uuid7":
		u, err := uuid.NewV7()
		if err != nil {
			return "", false
		}
		return u.String(), true

	case "now":
		if hasArgs {
			return strftime(time.Now().UTC(), args), true
		}
		return time.Now().UTC().Format(time.RFC3339), true
	case "now_local":
		if hasArgs {
			return strftime(time.Now(), args), true
		}
		return time.Now().Format(time.RFC3339), true
	case "date":
		return time.Now().UTC().Format("2006-01-02"), true
	case "time":
		return time.Now().UTC().Format("15:04:05"), true
	case "timestamp":
		return strconv.FormatInt(time.Now().Unix(), 10), true
	case "timestamp_ms":
		return strconv.FormatInt(time.Now().UnixMilli(), 10), true

	case "random_int", "random", "rand":
		return randomInt(args, hasArgs)
	case "random_float", "randf":
		return randomFloat(args, hasArgs)
	case "random_string", "rands":
		return randomString(argInt(args, 16)), true
	case "random_hex", "hex":
		return randomHex(argInt(args, 32)), true
	case "random_bytes", "bytes":
		return randomBytesBase64(argInt(args, 16)), true
	case "random_bool", "bool":
		return strconv.FormatBool(mrand.Intn(2) == 0), true

	case "env":
		if !hasArgs {
			return "", false
		}
		return os.Getenv(args), true

	case "pick":
		if !hasArgs {
			return "", false
		}
		items := strings.Split(args, ",")
		if len(items) == 0 {
			return "", false
		}
		return strings.TrimSpace(items[mrand.Intn(len(items))]), true

	case "seq":
		start := int64(argInt(args, 0))
		current := e.seq.Add(1) - 1
		return strconv.FormatInt(start+int64(current), 10), true
	case "seq_reset":
		e.ResetSeq()
		return "0", true

	case "email":
		if hasArgs && args != "" {
			return strings.ToLower(randomString(8)) + "@" + args, true
		}
		return gofakeit.Email(), true
	case "first_name":
		return gofakeit.FirstName(), true
	case "last_name":
		return gofakeit.LastName(), true
	case "full_name":
		return gofakeit.FirstName() + " " + gofakeit.LastName(), true
	case "lorem":
		n := argInt(args, 10)
		words := make([]string, 0, n)
		for i := 0; i < n; i++ {
			words = append(words, gofakeit.LoremIpsumWord())
		}
		return strings.Join(words, " "), true
	}
	return "", false
}

func argInt(args string, def int) int {
	if args == "" {
		return def
	}
	n, err := strconv.Atoi(args)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func randomInt(args string, hasArgs bool) (string, bool) {
	if !hasArgs {
		return strconv.FormatInt(mrand.Int63n(int64(1)<<31), 10), true
	}
	parts := strings.Split(args, ":")
	switch len(parts) {
	case 1:
		max, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || max < 0 {
			return "", false
		}
		return strconv.FormatInt(mrand.Int63n(max+1), 10), true
	case 2:
		min, err1 := strconv.ParseInt(parts[0], 10, 64)
		max, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil || max < min {
			return "", false
		}
		return strconv.FormatInt(min+mrand.Int63n(max-min+1), 10), true
	}
	return "", false
}

func randomFloat(args string, hasArgs bool) (string, bool) {
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', 6, 64) }
	if !hasArgs {
		return format(mrand.Float64()), true
	}
	parts := strings.Split(args, ":")
	switch len(parts) {
	case 1:
		max, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return "", false
		}
		return format(mrand.Float64() * max), true
	case 2:
		min, err1 := strconv.ParseFloat(parts[0], 64)
		max, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil || max < min {
			return "", false
		}
		return format(min + mrand.Float64()*(max-min)), true
	}
	return "", false
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		if err != nil {
			b[i] = alphanumeric[mrand.Intn(len(alphanumeric))]
			continue
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b)
}

func randomHex(n int) string {
	raw := make([]byte, n/2+1)
	if _, err := rand.Read(raw); err != nil {
		for i := range raw {
			raw[i] = byte(mrand.Intn(256))
		}
	}
	return hex.EncodeToString(raw)[:n]
}

func randomBytesBase64(n int) string {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		for i := range raw {
			raw[i] = byte(mrand.Intn(256))
		}
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// strftime formats t using a C strftime-style format string.  Only the
// directives that show up in request templates are supported; unknown
// directives pass through verbatim.
func strftime(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			b.WriteByte(format[i])
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			b.WriteString(t.Format("2006"))
		case 'y':
			b.WriteString(t.Format("06"))
		case 'm':
			b.WriteString(t.Format("01"))
		case 'd':
			b.WriteString(t.Format("02"))
		case 'H':
			b.WriteString(t.Format("15"))
		case 'M':
			b.WriteString(t.Format("04"))
		case 'S':
			b.WriteString(t.Format("05"))
		case 'f':
			b.WriteString(fmt.Sprintf("%06d", t.Nanosecond()/1000))
		case 'z':
			b.WriteString(t.Format("-0700"))
		case 'Z':
			b.WriteString(t.Format("MST"))
		case 's':
			b.WriteString(strconv.FormatInt(t.Unix(), 10))
		case 'j':
			b.WriteString(fmt.Sprintf("%03d", t.YearDay()))
		case 'a':
			b.WriteString(t.Format("Mon"))
		case 'A':
			b.WriteString(t.Format("Monday"))
		case 'b':
			b.WriteString(t.Format("Jan"))
		case 'B':
			b.WriteString(t.Format("January"))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

package cli_test

import (
	"testing"

	"github.com/quicpulse/quicpulse/cli"
	"github.com/quicpulse/quicpulse/input"
)

func process(t *testing.T, argv ...string) *cli.Processed {
	t.Helper()
	args, err := cli.Parse(argv)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	p, err := cli.Process(args, "http")
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	return p
}

func TestProcess_MethodURLItems(t *testing.T) {
	p := process(t, "POST", ":3000/users", "name=John", "age:=30", "X-Foo:bar")

	if p.Method != "POST" {
		t.Errorf("Method = %q", p.Method)
	}
	if p.URL != "http://localhost:3000/users" {
		t.Errorf("URL = %q", p.URL)
	}
	if len(p.Items) != 3 {
		t.Fatalf("items = %d", len(p.Items))
	}
	if !p.HasData {
		t.Error("HasData should be true")
	}
	if _, ok := p.Items[0].(input.DataField); !ok {
		t.Errorf("item 0 = %T", p.Items[0])
	}
	if _, ok := p.Items[1].(input.JSONField); !ok {
		t.Errorf("item 1 = %T", p.Items[1])
	}
	if h, ok := p.Items[2].(input.Header); !ok || h.Name != "X-Foo" || h.Value != "bar" {
		t.Errorf("item 2 = %#v", p.Items[2])
	}
}

func TestProcess_MethodInference(t *testing.T) {
	p := process(t, "example.com")
	if p.Method != "GET" {
		t.Errorf("no data: Method = %q, want GET", p.Method)
	}
	p = process(t, "example.com", "name=John")
	if p.Method != "POST" {
		t.Errorf("with data: Method = %q, want POST", p.Method)
	}
}

func TestProcess_CustomMethod(t *testing.T) {
	p := process(t, "PURGE", "example.com/cache")
	if p.Method != "PURGE" {
		t.Errorf("Method = %q", p.Method)
	}
}

func TestProcess_LowercaseStandardMethod(t *testing.T) {
	p := process(t, "delete", "example.com/x")
	if p.Method != "DELETE" {
		t.Errorf("Method = %q", p.Method)
	}
}

func TestProcess_URLOnlyFirstPositional(t *testing.T) {
	// A lone ":PORT" positional is the URL (localhost shorthand) and the
	// method is inferred as GET.
	p := process(t, ":8080")
	if p.URL != "http://localhost:8080" || p.Method != "GET" {
		t.Errorf("got %q %q", p.Method, p.URL)
	}
}

func TestProcess_HostWithPathColonNotAnItem(t *testing.T) {
	p := process(t, "example.com/users:admin")
	if p.URL != "http://example.com/users:admin" {
		t.Errorf("URL = %q", p.URL)
	}
	if len(p.Items) != 0 {
		t.Errorf("items = %v", p.Items)
	}
}

func TestProcess_NoURL(t *testing.T) {
	args, err := cli.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cli.Process(args, "http"); err == nil {
		t.Error("expected error with no positionals")
	}
}

func TestProcess_MagicExpansionInItems(t *testing.T) {
	p := process(t, "POST", "example.com", "id={uuid}")
	d, ok := p.Items[0].(input.DataField)
	if !ok {
		t.Fatalf("item = %T", p.Items[0])
	}
	if d.Value == "{uuid}" || len(d.Value) < 30 {
		t.Errorf("magic not expanded: %q", d.Value)
	}
}

func TestParse_Flags(t *testing.T) {
	args, err := cli.Parse([]string{"-f", "--follow", "--timeout", "5",
		"--proxy", "http:http://p:3128", "--proxy", "https:http://p2:3128",
		"-p", "hb", "POST", "example.com"})
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if args.JSON {
		t.Error("-f should disable JSON mode")
	}
	if !args.Follow || args.Timeout != 5 {
		t.Errorf("flags = %+v", args)
	}
	if len(args.Proxies) != 2 {
		t.Errorf("proxies = %v", args.Proxies)
	}
	if len(args.Positionals) != 2 {
		t.Errorf("positionals = %v", args.Positionals)
	}
}

func TestParse_CompressCount(t *testing.T) {
	args, err := cli.Parse([]string{"-xx", "example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if args.Compress != 2 {
		t.Errorf("Compress = %d", args.Compress)
	}
}

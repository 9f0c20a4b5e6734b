package nodes

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadRegistryYAMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, "nodes.yaml", `
nodes:
  - certname: foo.delivery.puppetlabs.net
  - certname: bar.example.net
    environment: staging
    enabled: false
    fail_on_404: false
    transport_facts:
      clientnoop: true
    trusted_facts:
      extensions:
        pp_role: db
`)

	reg, err := LoadRegistry(path, "6.4.0")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(reg.All()) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(reg.All()))
	}

	foo, ok := reg.ByCertname("foo.delivery.puppetlabs.net")
	if !ok {
		t.Fatalf("foo not loaded")
	}
	if foo.Environment != "production" || !foo.EnabledValue() || !foo.FailOn404Value() {
		t.Fatalf("defaults not applied: %+v", foo)
	}
	if foo.TrustedFacts["authenticated"] != "remote" || foo.TrustedFacts["hostname"] != "foo" || foo.TrustedFacts["domain"] != "delivery.puppetlabs.net" {
		t.Fatalf("trusted facts = %v", foo.TrustedFacts)
	}
	if foo.TransportFacts["clientcert"] != "foo.delivery.puppetlabs.net" || foo.TransportFacts["clientversion"] != "6.4.0" || foo.TransportFacts["clientnoop"] != false {
		t.Fatalf("transport facts = %v", foo.TransportFacts)
	}

	bar, _ := reg.ByCertname("bar.example.net")
	if bar.Environment != "staging" || bar.EnabledValue() || bar.FailOn404Value() {
		t.Fatalf("explicit values lost: %+v", bar)
	}
	if bar.TransportFacts["clientnoop"] != true {
		t.Fatalf("explicit transport fact overridden: %v", bar.TransportFacts)
	}
	ext, ok := bar.TrustedFacts["extensions"].(map[string]any)
	if !ok || ext["pp_role"] != "db" {
		t.Fatalf("explicit trusted facts lost: %v", bar.TrustedFacts)
	}

	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].Certname != "foo.delivery.puppetlabs.net" {
		t.Fatalf("Enabled = %+v", enabled)
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	path := writeFile(t, "nodes.json", `{"nodes":[{"certname":"web01.example.net","environment":"production"}]}`)
	reg, err := LoadRegistry(path, "6.4.0")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if _, ok := reg.ByCertname("web01.example.net"); !ok {
		t.Fatalf("node not loaded")
	}
}

func TestLoadRegistryDuplicateCertname(t *testing.T) {
	path := writeFile(t, "nodes.yaml", `
nodes:
  - certname: a.example.net
  - certname: " a.example.net "
`)
	if _, err := LoadRegistry(path, "6.4.0"); err == nil {
		t.Fatalf("expected duplicate certname error")
	}
}

func TestLoadRegistryRejectsInvalid(t *testing.T) {
	if _, err := LoadRegistry("", "6.4.0"); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadRegistry(writeFile(t, "nodes.yaml", "nodes: []\n"), "6.4.0"); err == nil {
		t.Fatalf("expected error for empty nodes list")
	}
	if _, err := LoadRegistry(writeFile(t, "nodes.yaml", "nodes:\n  - environment: production\n"), "6.4.0"); err == nil {
		t.Fatalf("expected error for missing certname")
	}
	if _, err := LoadRegistry(writeFile(t, "nodes.json", "{not json"), "6.4.0"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultTrustedFactsWithoutDomain(t *testing.T) {
	facts := DefaultTrustedFacts("localhost")
	if facts["hostname"] != "localhost" || facts["domain"] != "" {
		t.Fatalf("facts = %v", facts)
	}
}

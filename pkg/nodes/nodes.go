package nodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Package nodes loads the set of certless nodes whose catalogs are fetched.

const defaultEnvironment = "production"

// Node is a single node entry declared in the nodes file.
type Node struct {
	Certname       string         `json:"certname" yaml:"certname"`
	Environment    string         `json:"environment" yaml:"environment"`
	Enabled        *bool          `json:"enabled" yaml:"enabled"`
	FailOn404      *bool          `json:"fail_on_404" yaml:"fail_on_404"`
	TransportFacts map[string]any `json:"transport_facts" yaml:"transport_facts"`
	TrustedFacts   map[string]any `json:"trusted_facts" yaml:"trusted_facts"`
}

type configFile struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Registry materializes node definitions loaded from a file.
type Registry struct {
	mu    sync.RWMutex
	nodes []Node
	idx   map[string]Node
}

// LoadRegistry loads the node registry from a YAML/JSON file. agentVersion
// seeds the clientversion transport fact when the file leaves it out.
func LoadRegistry(path, agentVersion string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("nodes file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open nodes file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read nodes file: %w", err)
	}

	parsed, err := parseNodes(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Nodes) == 0 {
		return nil, errors.New("nodes file contains no nodes entries")
	}
	return NewRegistry(parsed.Nodes, agentVersion)
}

// NewRegistry validates and indexes nodes.
func NewRegistry(nodes []Node, agentVersion string) (*Registry, error) {
	reg := &Registry{
		nodes: make([]Node, 0, len(nodes)),
		idx:   make(map[string]Node, len(nodes)),
	}
	for i := range nodes {
		n := sanitizeNode(nodes[i], agentVersion)
		if err := validateNode(n); err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		if _, exists := reg.idx[n.Certname]; exists {
			return nil, fmt.Errorf("duplicate node certname %q", n.Certname)
		}
		reg.nodes = append(reg.nodes, n)
		reg.idx[n.Certname] = n
	}
	return reg, nil
}

type unmarshalFn func([]byte, any) error

func parseNodes(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var cfg configFile
		if err := d.fn(data, &cfg); err == nil {
			return cfg, nil
		}
	}
	return configFile{}, errors.New("nodes file format not recognized (expected YAML or JSON)")
}

func sanitizeNode(n Node, agentVersion string) Node {
	n.Certname = strings.TrimSpace(n.Certname)
	n.Environment = strings.TrimSpace(n.Environment)
	if n.Environment == "" {
		n.Environment = defaultEnvironment
	}
	if n.Enabled == nil {
		def := true
		n.Enabled = &def
	}
	if n.FailOn404 == nil {
		def := true
		n.FailOn404 = &def
	}

	n.TrustedFacts = mergeDefaults(n.TrustedFacts, DefaultTrustedFacts(n.Certname))
	n.TransportFacts = mergeDefaults(n.TransportFacts, DefaultTransportFacts(n.Certname, agentVersion))
	return n
}

func validateNode(n Node) error {
	if n.Certname == "" {
		return errors.New("certname is required")
	}
	if strings.ContainsAny(n.Certname, " \t\r\n") {
		return fmt.Errorf("certname %q must not contain whitespace", n.Certname)
	}
	return nil
}

// DefaultTrustedFacts returns the trusted facts of a remotely authenticated
// node: hostname and domain are split from the certname.
func DefaultTrustedFacts(certname string) map[string]any {
	hostname, domain, _ := strings.Cut(certname, ".")
	return map[string]any{
		"authenticated": "remote",
		"extensions":    map[string]any{},
		"certname":      certname,
		"hostname":      hostname,
		"domain":        domain,
	}
}

// DefaultTransportFacts returns the facts describing the agent connection.
func DefaultTransportFacts(certname, agentVersion string) map[string]any {
	return map[string]any{
		"clientcert":    certname,
		"clientversion": agentVersion,
		"clientnoop":    false,
	}
}

// mergeDefaults fills keys missing from facts. Keys present in facts win.
func mergeDefaults(facts, defaults map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(facts))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range facts {
		out[k] = v
	}
	return out
}

// ByCertname returns the node with the given certname.
func (r *Registry) ByCertname(certname string) (Node, bool) {
	if r == nil {
		return Node{}, false
	}
	certname = strings.TrimSpace(certname)
	if certname == "" {
		return Node{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.idx[certname]
	return n, ok
}

// All returns all configured nodes.
func (r *Registry) All() []Node {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Enabled returns nodes that are enabled.
func (r *Registry) Enabled() []Node {
	all := r.All()
	if len(all) == 0 {
		return nil
	}
	out := make([]Node, 0, len(all))
	for _, n := range all {
		if n.EnabledValue() {
			out = append(out, n)
		}
	}
	return out
}

// EnabledValue returns the enabled flag defaulting to true.
func (n Node) EnabledValue() bool {
	if n.Enabled == nil {
		return true
	}
	return *n.Enabled
}

// FailOn404Value returns the fail_on_404 flag defaulting to true.
func (n Node) FailOn404Value() bool {
	if n.FailOn404 == nil {
		return true
	}
	return *n.FailOn404
}

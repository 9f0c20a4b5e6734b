package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Resource is a single managed resource within a catalog.
type Resource struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Tags       []string       `json:"tags,omitempty"`
	File       string         `json:"file,omitempty"`
	Line       int            `json:"line,omitempty"`
	Exported   bool           `json:"exported"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Edge is a containment relationship between two resources.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Document is a decoded catalog. Raw keeps the decoded JSON object as
// received; the typed fields are views over it.
type Document struct {
	Name          string     `json:"name"`
	Version       string     `json:"-"`
	CatalogUUID   string     `json:"catalog_uuid"`
	CatalogFormat int        `json:"catalog_format"`
	Environment   string     `json:"environment"`
	Tags          []string   `json:"tags"`
	Classes       []string   `json:"classes"`
	Resources     []Resource `json:"resources"`
	Edges         []Edge     `json:"edges"`

	Raw map[string]any `json:"-"`
}

// Decode parses a catalog response body. The catalog may be wrapped in a
// {"catalog": {...}} envelope. Anything other than a JSON object is rejected.
// The typed fields are filled from the decoded object; values of an
// unexpected type are left empty rather than failing the decode.
func Decode(body []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if top == nil {
		return nil, errors.New("decode catalog: body is not a JSON object")
	}

	inner := body
	if wrapped, ok := top["catalog"]; ok {
		inner = wrapped
	}

	dec := json.NewDecoder(bytes.NewReader(inner))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if raw == nil {
		return nil, errors.New("decode catalog: catalog is not a JSON object")
	}

	doc := Document{
		Name:          stringOf(raw["name"]),
		CatalogUUID:   stringOf(raw["catalog_uuid"]),
		CatalogFormat: intOf(raw["catalog_format"]),
		Environment:   stringOf(raw["environment"]),
		Tags:          stringsOf(raw["tags"]),
		Classes:       stringsOf(raw["classes"]),
		Raw:           raw,
	}
	if v, ok := raw["version"]; ok && v != nil {
		doc.Version = fmt.Sprint(v)
	}
	if list, ok := raw["resources"].([]any); ok {
		doc.Resources = make([]Resource, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				doc.Resources = append(doc.Resources, resourceOf(m))
			}
		}
	}
	if list, ok := raw["edges"].([]any); ok {
		doc.Edges = make([]Edge, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				doc.Edges = append(doc.Edges, Edge{Source: stringOf(m["source"]), Target: stringOf(m["target"])})
			}
		}
	}
	return &doc, nil
}

func resourceOf(m map[string]any) Resource {
	r := Resource{
		Type:  stringOf(m["type"]),
		Title: stringOf(m["title"]),
		Tags:  stringsOf(m["tags"]),
		File:  stringOf(m["file"]),
		Line:  intOf(m["line"]),
	}
	r.Exported, _ = m["exported"].(bool)
	r.Parameters, _ = m["parameters"].(map[string]any)
	return r
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		return 0
	}
	return int(i)
}

// stringsOf keeps the string elements of a JSON array.
func stringsOf(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Digest is a stable hash of the catalog content. Fields that change on
// every compile (version, catalog_uuid) are excluded so two compiles of the
// same configuration share a digest.
func (d *Document) Digest() string {
	content := make(map[string]any, len(d.Raw))
	for k, v := range d.Raw {
		switch k {
		case "version", "catalog_uuid", "code_id", "producer_timestamp":
			continue
		}
		content[k] = v
	}
	// encoding/json sorts map keys, which keeps the encoding canonical.
	raw, _ := json.Marshal(content)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// MarshalJSON renders the raw catalog object.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d.Raw != nil {
		return json.Marshal(d.Raw)
	}
	type plain Document
	return json.Marshal((*plain)(d))
}

package templating

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
	"gopkg.in/yaml.v3"
)

// LoadDataFile reads a JSON or YAML file into an ordered data tree. Mappings
// become *lex.Map values so their key order is kept.
func LoadDataFile(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(raw)
	default:
		return lex.DecodeJSON(bytes.NewReader(raw))
	}
}

// DecodeYAML decodes a single YAML document, keeping mapping key order.
func DecodeYAML(raw []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return lex.NewMap(), nil
	}
	return yamlValue(&doc)
}

// yamlDecoder converts a node tree. expanding holds the anchors whose aliases
// are being expanded, so an alias that refers back into its own anchor is
// reported instead of expanded forever.
type yamlDecoder struct {
	expanding map[*yaml.Node]bool
}

func yamlValue(n *yaml.Node) (any, error) {
	d := &yamlDecoder{expanding: make(map[*yaml.Node]bool)}
	return d.value(n)
}

func (d *yamlDecoder) value(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.value(n.Content[0])
	case yaml.MappingNode:
		m := lex.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := d.value(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(n.Content[i].Value, v)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.value(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("line %d: unknown alias %q", n.Line, n.Value)
		}
		if d.expanding[n.Alias] {
			return nil, fmt.Errorf("line %d: alias %q refers to itself", n.Line, n.Value)
		}
		d.expanding[n.Alias] = true
		defer delete(d.expanding, n.Alias)
		return d.value(n.Alias)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
}

// findDataFile returns the first existing file among base+ext for the data
// extensions, or "" when there is none.
func findDataFile(base string) string {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext
		}
	}
	return ""
}

// loadSiteConfig reads template.conf (JSON) or template.yaml from dir.
// A missing file yields an empty map.
func loadSiteConfig(dir string) (*lex.Map, string, error) {
	for _, name := range []string{"template.conf", "template.yaml", "template.yml"} {
		path := filepath.Join(dir, name)
		var v any
		var err error
		if name == "template.conf" {
			var raw []byte
			raw, err = os.ReadFile(path)
			if err == nil {
				v, err = lex.DecodeJSON(bytes.NewReader(raw))
			}
		} else {
			v, err = LoadDataFile(path)
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("failed to read site config %s: %w", path, err)
		}
		m, ok := v.(*lex.Map)
		if !ok {
			return nil, path, fmt.Errorf("site config %s is not an object", path)
		}
		return m, path, nil
	}
	return lex.NewMap(), "", nil
}

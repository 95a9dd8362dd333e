// Package yamlquery pulls scalar values out of YAML documents with yq-style
// path expressions such as `.odm.credentials.USERNAME`.
//
// Paths are evaluated as JSONPath over the decoded document, so anything
// JSONPath accepts after the leading `$` works here too (`.a[0]`, `.a["b c"]`).
package yamlquery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// ErrNotScalar is returned when a path resolves to a mapping or a sequence.
var ErrNotScalar = errors.New("yamlquery: value is not a scalar")

// Document is a decoded YAML file ready for queries.
type Document struct {
	path string
	root any
}

// Load reads and decodes the YAML file at path. An empty file is a valid
// document in which every path is absent.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yamlquery: read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes data; name is only used in error messages. Scalars keep
// their source text: `007` stays "007" and `1.10` stays "1.10".
func Parse(name string, data []byte) (*Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("yamlquery: parse %s: %w", name, err)
	}
	return &Document{path: name, root: plain(&node)}, nil
}

// plain turns a node tree into maps, slices and strings. Nulls become nil;
// aliases and merge keys are resolved, explicit keys winning over merged ones.
func plain(n *yaml.Node) any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return plain(n.Content[0])
	case yaml.AliasNode:
		return plain(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		var merged []any
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.ShortTag() == "!!merge" {
				merged = append(merged, plain(val))
				continue
			}
			out[key.Value] = plain(val)
		}
		for _, src := range merged {
			mergeInto(out, src)
		}
		return out
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, item := range n.Content {
			out[i] = plain(item)
		}
		return out
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return nil
		}
		return n.Value
	default:
		return nil
	}
}

func mergeInto(dst map[string]any, src any) {
	switch v := src.(type) {
	case map[string]any:
		for key, val := range v {
			if _, ok := dst[key]; !ok {
				dst[key] = val
			}
		}
	case []any:
		for _, item := range v {
			mergeInto(dst, item)
		}
	}
}

// Scalar evaluates expr and returns the value as a string. Absent keys and
// explicit nulls yield "" with no error.
func (d *Document) Scalar(expr string) (string, error) {
	jp, err := toJSONPath(expr)
	if err != nil {
		return "", err
	}
	eval, err := jsonpath.New(jp)
	if err != nil {
		return "", fmt.Errorf("yamlquery: invalid path %q: %w", expr, err)
	}
	if d == nil || d.root == nil {
		return "", nil
	}
	val, err := eval(context.Background(), d.root)
	if err != nil {
		// Every evaluation error means the path does not resolve in this
		// document, including a step into a scalar. yq prints null there.
		return "", nil
	}
	return stringify(expr, val)
}

// Scalar is a convenience for a single lookup in the file at path.
func Scalar(path, expr string) (string, error) {
	doc, err := Load(path)
	if err != nil {
		return "", err
	}
	return doc.Scalar(expr)
}

func toJSONPath(expr string) (string, error) {
	trimmed := strings.TrimSpace(expr)
	switch {
	case trimmed == "":
		return "", fmt.Errorf("yamlquery: empty path")
	case strings.HasPrefix(trimmed, "$"):
		return trimmed, nil
	case trimmed == ".":
		return "$", nil
	case strings.HasPrefix(trimmed, "."), strings.HasPrefix(trimmed, "["):
		return "$" + trimmed, nil
	default:
		return "$." + trimmed, nil
	}
}

func stringify(expr string, val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]any, []any:
		return "", fmt.Errorf("%w: %s", ErrNotScalar, expr)
	default:
		return fmt.Sprint(v), nil
	}
}

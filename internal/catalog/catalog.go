// Package catalog loads the ordered prompt list sent to subscribers.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks a catalog that must not be used to run the bot.
var ErrConfig = errors.New("prompt catalog config error")

// Catalog is an immutable, non-empty, cyclically indexed list of prompts.
type Catalog struct {
	prompts []string
}

// New builds a catalog from prompts. The slice is copied.
func New(prompts []string) (Catalog, error) {
	if len(prompts) == 0 {
		return Catalog{}, fmt.Errorf("%w: no prompts", ErrConfig)
	}
	cp := make([]string, len(prompts))
	copy(cp, prompts)
	return Catalog{prompts: cp}, nil
}

// Load reads a catalog file. The file holds a sequence of strings, either as
// a JSON array or as a YAML list.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	prompts, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("%s: %w", path, err)
	}
	return New(prompts)
}

// Parse decodes a JSON array or a YAML list of strings.
func Parse(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrConfig)
	}
	if trimmed[0] == '[' {
		out, err := parseJSON(trimmed)
		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			return out, err
		}
		// Not JSON; may still be a YAML flow list such as [a, b].
		if out, yerr := parseYAML(data); yerr == nil {
			return out, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return parseYAML(data)
}

func parseJSON(data []byte) ([]string, error) {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		p, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d is not a string", ErrConfig, i)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no prompts", ErrConfig)
	}
	return out, nil
}

func parseYAML(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: expected a list of strings", ErrConfig)
	}
	out := make([]string, 0, len(root.Content))
	for i, n := range root.Content {
		if n.Kind != yaml.ScalarNode || n.Tag != "!!str" {
			return nil, fmt.Errorf("%w: entry %d (line %d) is not a string", ErrConfig, i, n.Line)
		}
		out = append(out, n.Value)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no prompts", ErrConfig)
	}
	return out, nil
}

// Len returns the number of prompts; always at least 1 for a loaded catalog.
func (c Catalog) Len() int { return len(c.prompts) }

// Norm reduces i into [0, Len()).
func (c Catalog) Norm(i int) int {
	n := len(c.prompts)
	if n == 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Next returns the index following i, wrapping at the end.
func (c Catalog) Next(i int) int {
	return c.Norm(i + 1)
}

// At returns the prompt at i modulo Len().
func (c Catalog) At(i int) string {
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[c.Norm(i)]
}

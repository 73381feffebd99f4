package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrKeyNotFound is returned by GetString for keys absent from the source
var ErrKeyNotFound = errors.New("config key not found")

// Source is a hierarchical key/value configuration source addressed by
// dotted keys ("ddl_worker.task_queue_path").
type Source interface {
	// Keys returns the names of the immediate children of prefix, sorted.
	// An empty prefix lists the top-level keys.
	Keys(prefix string) []string
	GetString(key string) (string, error)
}

// Params is a flattened configuration document. Only scalar leaves are
// stored; sequence items are addressed by index ("servers.0").
type Params map[string]string

// ParseParams flattens a YAML document into Params
func ParseParams(data []byte) (Params, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	params := Params{}
	if len(root.Content) == 0 {
		return params, nil
	}

	flatten(root.Content[0], "", params)
	return params, nil
}

func flatten(node *yaml.Node, key string, out Params) {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			flatten(node.Content[i+1], joinKey(key, node.Content[i].Value), out)
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			flatten(item, joinKey(key, strconv.Itoa(i)), out)
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			flatten(node.Alias, key, out)
		}
	case yaml.ScalarNode:
		if key == "" {
			return
		}
		if node.Tag == "!!null" {
			out[key] = ""
			return
		}
		out[key] = node.Value
	}
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Keys implements Source
func (p Params) Keys(prefix string) []string {
	seen := map[string]struct{}{}

	for key := range p {
		rest := key
		if prefix != "" {
			if !strings.HasPrefix(key, prefix+".") {
				continue
			}
			rest = key[len(prefix)+1:]
		}

		name, _, _ := strings.Cut(rest, ".")
		seen[name] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for name := range seen {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// GetString implements Source
func (p Params) GetString(key string) (string, error) {
	value, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return value, nil
}

package file

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
)

// codec converts registry bytes to the in-memory map and patches a single
// entry in place. expire works on the stored document rather than on
// domain.Entry so fields and comments the gateway does not model survive.
type codec interface {
	decode(data []byte) (domain.Registry, error)
	expire(data []byte, key string) ([]byte, error)
}

// codecFor picks YAML for .yaml/.yml paths and JSON for everything else.
func codecFor(path string) codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlCodec{}
	default:
		return jsonCodec{}
	}
}

type jsonCodec struct{}

func (jsonCodec) decode(data []byte) (domain.Registry, error) {
	var reg domain.Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// expire writes sorted keys with four space indentation so that each
// expiration shows up as a one line diff.
func (jsonCodec) expire(data []byte, key string) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	raw, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("entry %q not found", key)
	}

	patched, err := store.MarkExpiredJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", key, err)
	}
	doc[key] = patched

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type yamlCodec struct{}

func (yamlCodec) decode(data []byte) (domain.Registry, error) {
	var reg domain.Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (yamlCodec) expire(data []byte, key string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}

	entry := mappingValue(doc.Content[0], key)
	if entry == nil || entry.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("entry %q is not a mapping", key)
	}

	expired := string(domain.StatusExpired)
	if status := mappingValue(entry, "status"); status != nil {
		*status = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: expired, LineComment: status.LineComment}
	} else {
		entry.Content = append(entry.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "status"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: expired},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mappingValue returns the value node stored under key in mapping m.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

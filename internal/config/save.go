package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/bimview/internal/log"
)

var sectionComments = map[string]string{
	"api":     "Fragments conversion server (env override: BIMVIEW_API_BASE_URL)",
	"viewer":  "What the viewer loads at startup",
	"tree":    "Spatial structure loading: attempts and linear backoff step",
	"cache":   "Fragments database and item data cache",
	"watch":   "Reload viewer.file when it changes on disk",
	"ui":      "UI settings",
	"tracing": "Distributed tracing: exporter is none, file, stdout or otlp",
	"metrics": "Prometheus /metrics endpoint, e.g. addr: localhost:9090",
}

// DefaultConfigNode returns Defaults() as a YAML document with a comment
// above each section.
func DefaultConfigNode() (*yaml.Node, error) {
	var root yaml.Node
	if err := root.Encode(Defaults()); err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if c, ok := sectionComments[root.Content[i].Value]; ok {
			root.Content[i].HeadComment = c
		}
	}
	return &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "bimview configuration",
		Content:     []*yaml.Node{&root},
	}, nil
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	doc, err := DefaultConfigNode()
	if err != nil {
		return err
	}
	if err := writeDocument(configPath, doc); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return err
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

// SetValue sets the dotted key (e.g. "api.base_url") to value in the config
// file. Comments and formatting elsewhere in the file are preserved.
func SetValue(configPath, key string, value any) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid key %q", key)
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- path comes from the user
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}

	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	node := doc.Content[0]
	for i, p := range parts {
		last := i == len(parts)-1
		child := lookup(node, p)
		switch {
		case last && child != nil:
			child.Kind, child.Tag, child.Value, child.Style = valueNode.Kind, valueNode.Tag, valueNode.Value, valueNode.Style
			child.Content = valueNode.Content
		case last:
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: p}, &valueNode)
		case child == nil:
			child = &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: p}, child)
		case child.Kind != yaml.MappingNode:
			return fmt.Errorf("%s is not a section", strings.Join(parts[:i+1], "."))
		}
		node = child
	}

	if err := writeDocument(configPath, &doc); err != nil {
		return err
	}
	log.Info(log.CatConfig, "Config value saved", "path", configPath, "key", key)
	return nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// writeDocument writes doc atomically (write to temp, then rename).
func writeDocument(configPath string, doc *yaml.Node) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".bimview.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

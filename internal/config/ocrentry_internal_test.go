package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestOcrEntryUnmarshalYAMLRejectsMapping(t *testing.T) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("backend: tesseract"), &node); err != nil {
		t.Fatalf("unmarshal node: %v", err)
	}
	// node is a DocumentNode wrapping a single MappingNode child.
	mapping := node.Content[0]

	var entry OcrEntry
	if err := entry.UnmarshalYAML(mapping); err == nil {
		t.Error("expected an error unmarshalling a mapping into OcrEntry")
	}
}

func TestOcrEntryIsChainReflectsNameCount(t *testing.T) {
	single := OcrEntry{Names: []string{"tesseract"}}
	if single.IsChain() {
		t.Error("single-name entry should not be a chain")
	}

	chain := OcrEntry{Names: []string{"groq", "gemini"}}
	if !chain.IsChain() {
		t.Error("multi-name entry should be a chain")
	}
}

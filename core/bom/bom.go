// Package bom decodes normalized line items from JSON or YAML documents.
package bom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
)

// Format is a document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is a BOM with optional run hints. A bare list of line items is
// also accepted.
type Document struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// BoardQuantity is used when the run does not set one
	BoardQuantity int `json:"board_quantity,omitempty" yaml:"board_quantity,omitempty"`

	Items []types.LineItem `json:"line_items" yaml:"line_items"`
}

// FormatFor picks a format from a file extension
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.Input(fmt.Sprintf("unsupported BOM file type %q", filepath.Ext(path)), nil)
}

// LoadFile reads a BOM document from path
func LoadFile(path string) (*Document, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Input(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	doc, err := Decode(f, format)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Decode reads a document. Line numbers default to the item's position and
// declared categories are normalized.
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Input("failed to read BOM", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.Input("BOM is empty", nil)
	}

	var doc Document
	switch format {
	case FormatJSON:
		if trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &doc.Items)
		} else {
			err = json.Unmarshal(trimmed, &doc)
		}
	case FormatYAML:
		var node yaml.Node
		if err = yaml.Unmarshal(trimmed, &node); err == nil && len(node.Content) > 0 {
			if node.Content[0].Kind == yaml.SequenceNode {
				err = node.Content[0].Decode(&doc.Items)
			} else {
				err = node.Content[0].Decode(&doc)
			}
		}
	default:
		return nil, errors.Input(fmt.Sprintf("unsupported BOM format %q", format), nil)
	}
	if err != nil {
		return nil, errors.Input(fmt.Sprintf("malformed %s BOM", format), err)
	}
	if doc.BoardQuantity < 0 {
		return nil, errors.Input(fmt.Sprintf("board_quantity %d must not be negative", doc.BoardQuantity), nil)
	}

	for i := range doc.Items {
		item := &doc.Items[i]
		if item.LineNumber == 0 {
			item.LineNumber = i + 1
		}
		item.Category = types.ParseCategory(string(item.Category))
	}
	return &doc, nil
}

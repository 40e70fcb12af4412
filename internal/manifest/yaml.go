package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML manifest. Unknown fields are rejected.
func ParseYAML(file string, data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: "empty manifest", Pos: Pos{File: file}}
		}
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parse YAML: %v", err), Pos: yamlErrorPos(file, err)}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err == nil {
		annotateYAML(file, &root, &m)
	}

	m.normalize()
	return &m, nil
}

// annotateYAML copies the position of every type and initializer entry from
// the node tree into m.
func annotateYAML(file string, root *yaml.Node, m *Manifest) {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return
	}

	for k := 0; k+1 < len(doc.Content); k += 2 {
		key, value := doc.Content[k], doc.Content[k+1]
		if value.Kind != yaml.SequenceNode {
			continue
		}
		switch key.Value {
		case "types":
			for i, item := range value.Content {
				if i < len(m.Types) {
					m.Types[i].Pos = Pos{File: file, Line: item.Line, Column: item.Column}
				}
			}
		case "initializers":
			for i, item := range value.Content {
				if i < len(m.Initializers) {
					m.Initializers[i].Pos = Pos{File: file, Line: item.Line, Column: item.Column}
				}
			}
		}
	}
}

func yamlErrorPos(file string, err error) Pos {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		// messages of the form "line 3: field foo not found in type ..."
		var line int
		for _, msg := range typeErr.Errors {
			if _, scanErr := fmt.Sscanf(msg, "line %d:", &line); scanErr == nil {
				return Pos{File: file, Line: line}
			}
		}
	}
	return Pos{File: file}
}

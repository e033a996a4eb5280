package pics

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// parseYAML parses PICS data in YAML format. The items mapping is walked
// as a node tree so that entries keep their source order and line numbers.
func (p *Parser) parseYAML(data []byte) (*Table, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}

	t := &Table{byKey: make(map[string]Entry)}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return t, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping at the top level", doc.Line)
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valueNode := doc.Content[i], doc.Content[i+1]
		if keyNode.Value != "items" {
			continue
		}
		if valueNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: items must be a mapping", valueNode.Line)
		}
		for j := 0; j+1 < len(valueNode.Content); j += 2 {
			itemKey, itemValue := valueNode.Content[j], valueNode.Content[j+1]
			if itemValue.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: value of %s must be a scalar", itemValue.Line, itemKey.Value)
			}
			key := clearInput(itemKey.Value)
			if key == "" {
				return nil, fmt.Errorf("line %d: empty code", itemKey.Line)
			}
			t.add(Entry{Key: key, Raw: yamlRaw(itemValue), LineNumber: itemKey.Line})
		}
	}
	return t, nil
}

// yamlRaw maps a scalar to the key=value representation. Booleans become
// "1" or "0"; everything else keeps its literal text.
func yamlRaw(n *yaml.Node) string {
	if n.ShortTag() == "!!bool" {
		var b bool
		if err := n.Decode(&b); err == nil {
			if b {
				return EnabledValue
			}
			return "0"
		}
	}
	return clearInput(n.Value)
}

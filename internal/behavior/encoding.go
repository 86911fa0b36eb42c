package behavior

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// The YAML graph format is what the editor exports: nodes keyed by id with a
// kind, a name, and a values map; connections as from/connector/to triples.

type graphDocument struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Nodes       []nodeDocument       `yaml:"nodes"`
	Connections []connectionDocument `yaml:"connections"`
}

type nodeDocument struct {
	ID     string               `yaml:"id"`
	Kind   string               `yaml:"kind"`
	Name   string               `yaml:"name"`
	Values map[string]yaml.Node `yaml:"values"`
}

type connectionDocument struct {
	From      string `yaml:"from"`
	Connector string `yaml:"connector"`
	To        string `yaml:"to"`
}

// DecodeGraph parses one exported graph. The graph's Kind is assigned by the
// library it is registered with, not the document.
func DecodeGraph(data []byte) (*Graph, error) {
	var doc graphDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}

	id, err := parseOptionalUUID(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", doc.Name, err)
	}

	g := &Graph{
		ID:    id,
		Name:  doc.Name,
		Nodes: make(map[NodeID]*Node, len(doc.Nodes)),
	}

	for _, nd := range doc.Nodes {
		nodeID, err := parseOptionalUUID(nd.ID)
		if err != nil {
			return nil, fmt.Errorf("graph %q node %q: %w", doc.Name, nd.Name, err)
		}
		node := &Node{
			ID:     nodeID,
			Kind:   NodeKind(nd.Kind),
			Name:   nd.Name,
			Values: make(map[string]Value, len(nd.Values)),
		}
		for slot, raw := range nd.Values {
			v, err := decodeValue(&raw)
			if err != nil {
				return nil, fmt.Errorf("graph %q node %q slot %q: %w", doc.Name, nd.Name, slot, err)
			}
			node.Values[slot] = v
		}
		g.Nodes[nodeID] = node
	}

	for _, cd := range doc.Connections {
		from, err := uuid.Parse(cd.From)
		if err != nil {
			return nil, fmt.Errorf("graph %q connection from: %w", doc.Name, err)
		}
		to, err := uuid.Parse(cd.To)
		if err != nil {
			return nil, fmt.Errorf("graph %q connection to: %w", doc.Name, err)
		}
		connector, err := parseConnector(cd.Connector)
		if err != nil {
			return nil, fmt.Errorf("graph %q connection: %w", doc.Name, err)
		}
		g.Connections = append(g.Connections, Connection{From: from, FromConnector: connector, To: to})
	}

	return g, nil
}

// decodeValue maps a YAML scalar or mapping into a slot value: numbers stay
// numbers, strings stay text, a mapping is a position.
func decodeValue(raw *yaml.Node) (Value, error) {
	switch raw.Kind {
	case yaml.ScalarNode:
		var n float64
		if err := raw.Decode(&n); err == nil && raw.Tag != "!!str" {
			return NumberValue(n), nil
		}
		var s string
		if err := raw.Decode(&s); err != nil {
			return Value{}, err
		}
		return TextValue(s), nil
	case yaml.MappingNode:
		var pos Position
		if err := raw.Decode(&pos); err != nil {
			return Value{}, err
		}
		return PositionValue(pos), nil
	}
	return Value{}, fmt.Errorf("unsupported value node kind %d", raw.Kind)
}

func parseConnector(s string) (Connector, error) {
	switch s {
	case "success":
		return ConnectorSuccess, nil
	case "fail":
		return ConnectorFail, nil
	case "right":
		return ConnectorRight, nil
	case "left":
		return ConnectorLeft, nil
	case "bottom", "":
		return ConnectorBottom, nil
	case "top":
		return ConnectorTop, nil
	}
	return ConnectorBottom, fmt.Errorf("unknown connector %q", s)
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

package tree

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/metarender/pkg/errors"
)

// canonicalMode encodes with sorted map keys and shortest-form integers, so
// equal trees always yield identical bytes.
var canonicalMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Decode parses YAML text into a tree. An empty document decodes to an
// empty mapping.
func Decode(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSyntax, err, "unable to parse recipe")
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewMapping(), nil
	}
	return fromNode(doc.Content[0])
}

func fromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return NewMapping(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.ScalarNode:
		return Scalar(n.Value), nil
	case yaml.SequenceNode:
		out := make(Sequence, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := NewMapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, errors.New(errors.ErrCodeSyntax, "line %d: mapping keys must be scalars", k.Line)
			}
			v, err := fromNode(vn)
			if err != nil {
				return nil, err
			}
			if k.Tag == "!!merge" {
				if src, ok := v.(*Mapping); ok {
					for _, mk := range src.keys {
						if !out.Has(mk) {
							out.Set(mk, src.vals[mk])
						}
					}
					continue
				}
			}
			out.Set(k.Value, v)
		}
		return out, nil
	default:
		return nil, errors.New(errors.ErrCodeSyntax, "line %d: unsupported YAML node", n.Line)
	}
}

// DecodeMapping decodes data and requires the top level to be a mapping.
func DecodeMapping(data []byte) (*Mapping, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Mapping)
	if !ok {
		return nil, errors.New(errors.ErrCodeSchema, "recipe must be a mapping, not %s", v.Kind())
	}
	return m, nil
}

// Encode renders v as YAML, preserving mapping key order.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toNode(v)); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func toNode(v Value) *yaml.Node {
	switch t := v.(type) {
	case Sequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			n.Content = append(n.Content, toNode(item))
		}
		return n
	case *Mapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range t.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				toNode(t.vals[k]))
		}
		return n
	case Scalar:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(t)}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// MarshalCanonical encodes v as deterministic CBOR. Mapping keys are sorted
// by the encoder, so insertion order does not affect the output.
func MarshalCanonical(v Value) ([]byte, error) {
	data, err := canonicalMode.Marshal(ToNative(v))
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return data, nil
}

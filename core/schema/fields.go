package schema

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Fields is an ordered mapping of child key to field.
// Insertion order is the display order and is preserved through JSON and YAML.
type Fields struct {
	keys  []string
	byKey map[string]*Field
}

// NewFields returns Fields holding fields in the given order.
func NewFields(fields ...*Field) Fields {
	var fs Fields
	for _, f := range fields {
		fs.add(f.Key, f)
	}
	return fs
}

func (fs *Fields) add(key string, f *Field) {
	if fs.byKey == nil {
		fs.byKey = make(map[string]*Field)
	}
	if f.Key == "" {
		f.Key = key
	}
	if _, ok := fs.byKey[key]; !ok {
		fs.keys = append(fs.keys, key)
	}
	fs.byKey[key] = f
}

func (fs Fields) Len() int { return len(fs.keys) }

// Keys returns the keys in order.
func (fs Fields) Keys() []string {
	return append([]string(nil), fs.keys...)
}

func (fs Fields) Get(key string) (*Field, bool) {
	f, ok := fs.byKey[key]
	return f, ok
}

// All returns the fields in order.
func (fs Fields) All() []*Field {
	all := make([]*Field, 0, len(fs.keys))
	for _, k := range fs.keys {
		all = append(all, fs.byKey[k])
	}
	return all
}

// Each calls fn for every field in order, stopping at the first error.
func (fs Fields) Each(fn func(key string, f *Field) error) error {
	for _, k := range fs.keys {
		if err := fn(k, fs.byKey[k]); err != nil {
			return err
		}
	}
	return nil
}

func (fs *Fields) UnmarshalJSON(b []byte) error {
	*fs = Fields{}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.Errorf("fields: expected an object, got %v", tok)
	}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("fields: expected a key, got %v", tok)
		}
		f := new(Field)
		if err = dec.Decode(f); err != nil {
			return errors.Wrapf(err, "decoding field %q", key)
		}
		fs.add(key, f)
	}
	_, err = dec.Token() // closing '}'
	return err
}

func (fs Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range fs.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		fb, err := json.Marshal(fs.byKey[k])
		if err != nil {
			return nil, errors.Wrapf(err, "encoding field %q", k)
		}
		buf.Write(fb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (fs *Fields) UnmarshalYAML(node *yaml.Node) error {
	*fs = Fields{}
	if node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("fields: line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		f := new(Field)
		if err := node.Content[i+1].Decode(f); err != nil {
			return errors.Wrapf(err, "decoding field %q", key)
		}
		fs.add(key, f)
	}
	return nil
}

func (fs Fields) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range fs.keys {
		var val yaml.Node
		if err := val.Encode(fs.byKey[k]); err != nil {
			return nil, errors.Wrapf(err, "encoding field %q", k)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &val)
	}
	return node, nil
}

// IsZero lets `omitempty` drop empty Fields.
func (fs Fields) IsZero() bool { return fs.Len() == 0 }

// Package schema describes report forms: a recursive, ordered tree of typed fields.
//
// Schema trees are immutable once decoded and may be shared by concurrent sessions.
package schema

import (
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrUnknownType = errors.New("unknown field type")

// Type is the kind of widget a field is rendered with.
type Type string

const (
	TypeText        Type = "text"
	TypeTextarea    Type = "textarea"
	TypeNumber      Type = "number"
	TypeDropdown    Type = "dropdown"
	TypeCheckbox    Type = "checkbox"
	TypeDate        Type = "date"
	TypeFile        Type = "file"
	TypeMultiSelect Type = "multiSelect"
	TypeTable       Type = "table"
	TypeAllowAdd    Type = "allowAdd"
	TypeAutoRow     Type = "autoRow"
	TypeSummary     Type = "summary"
	TypeGroup       Type = "group"
)

// Types is the closed set of field types.
var Types = []Type{
	TypeText, TypeTextarea, TypeNumber, TypeDropdown, TypeCheckbox, TypeDate, TypeFile,
	TypeMultiSelect, TypeTable, TypeAllowAdd, TypeAutoRow, TypeSummary, TypeGroup,
}

func (t Type) Valid() bool {
	for _, typ := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

// HasValue reports whether fields of this type hold a value of their own.
func (t Type) HasValue() bool { return t != "" && t != TypeGroup }

// Field is one node of a schema tree.
type Field struct {
	Key      string  `json:"key" yaml:"key" validate:"required,fieldkey"`
	Name     string  `json:"name" yaml:"name"`
	Type     Type    `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,fieldtype"`
	Required bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Inline   bool    `json:"inline,omitempty" yaml:"inline,omitempty"`
	Fields   Fields  `json:"fields,omitempty" yaml:"fields,omitempty"`
	Config   Config  `json:"config,omitempty" yaml:"config,omitempty" validate:"-"`
	// From is copied into the field when an editing session opens.
	From     *Source `json:"from,omitempty" yaml:"from,omitempty"`
	// LockedBy is the path of a checkbox. The field refuses edits while the checkbox
	// is checked or unset, and checking it clears the field.
	LockedBy string  `json:"lockedBy,omitempty" yaml:"lockedBy,omitempty"`
}

// Source addresses a value saved in another section of the same report.
type Source struct {
	Section string `json:"section" yaml:"section" validate:"required"`
	Path    string `json:"path" yaml:"path" validate:"required"`
}

// HasFields reports whether the field nests children.
func (f *Field) HasFields() bool { return f.Fields.Len() > 0 }

func (f *Field) Table() *TableConfig       { c, _ := f.Config.(*TableConfig); return c }
func (f *Field) Options() *OptionsConfig   { c, _ := f.Config.(*OptionsConfig); return c }
func (f *Field) AllowAdd() *AllowAddConfig { c, _ := f.Config.(*AllowAddConfig); return c }
func (f *Field) AutoRow() *AutoRowConfig   { c, _ := f.Config.(*AutoRowConfig); return c }
func (f *Field) Summary() *SummaryConfig   { c, _ := f.Config.(*SummaryConfig); return c }
func (f *Field) File() *FileConfig         { c, _ := f.Config.(*FileConfig); return c }

// RowFields returns the template instantiated per row of an allowAdd or autoRow field.
func (f *Field) RowFields() Fields {
	switch cfg := f.Config.(type) {
	case *AllowAddConfig:
		return cfg.Fields
	case *AutoRowConfig:
		return cfg.Fields
	}
	return Fields{}
}

type fieldJSON struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Type     Type            `json:"type"`
	Required bool            `json:"required"`
	Inline   bool            `json:"inline"`
	Fields   Fields          `json:"fields"`
	Config   json.RawMessage `json:"config"`
	From     *Source         `json:"from"`
	LockedBy string          `json:"lockedBy"`
}

func (f *Field) UnmarshalJSON(b []byte) error {
	var aux fieldJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Type != "" && !aux.Type.Valid() {
		return errors.Wrapf(ErrUnknownType, "field %q: %q", aux.Key, aux.Type)
	}
	*f = Field{
		Key:      aux.Key,
		Name:     aux.Name,
		Type:     aux.Type,
		Required: aux.Required,
		Inline:   aux.Inline,
		Fields:   aux.Fields,
		From:     aux.From,
		LockedBy: aux.LockedBy,
	}
	if cfg := newConfig(aux.Type); cfg != nil && len(aux.Config) > 0 && string(aux.Config) != "null" {
		if err := json.Unmarshal(aux.Config, cfg); err != nil {
			return errors.Wrapf(err, "decoding config of field %q", aux.Key)
		}
		f.Config = cfg
	}
	return nil
}

type fieldYAML struct {
	Key      string    `yaml:"key"`
	Name     string    `yaml:"name"`
	Type     Type      `yaml:"type"`
	Required bool      `yaml:"required"`
	Inline   bool      `yaml:"inline"`
	Fields   Fields    `yaml:"fields"`
	Config   yaml.Node `yaml:"config"`
	From     *Source   `yaml:"from"`
	LockedBy string    `yaml:"lockedBy"`
}

func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	var aux fieldYAML
	if err := node.Decode(&aux); err != nil {
		return err
	}
	if aux.Type != "" && !aux.Type.Valid() {
		return errors.Wrapf(ErrUnknownType, "field %q: %q", aux.Key, aux.Type)
	}
	*f = Field{
		Key:      aux.Key,
		Name:     aux.Name,
		Type:     aux.Type,
		Required: aux.Required,
		Inline:   aux.Inline,
		Fields:   aux.Fields,
		From:     aux.From,
		LockedBy: aux.LockedBy,
	}
	if cfg := newConfig(aux.Type); cfg != nil && aux.Config.Kind != 0 && aux.Config.Tag != "!!null" {
		if err := aux.Config.Decode(cfg); err != nil {
			return errors.Wrapf(err, "decoding config of field %q", aux.Key)
		}
		f.Config = cfg
	}
	return nil
}

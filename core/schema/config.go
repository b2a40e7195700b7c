package schema

// Config is the type-specific configuration of a field.
type Config interface {
	configType() []Type
}

type (
	ColumnType string

	Column struct {
		Key  string     `json:"key" yaml:"key" validate:"required,fieldkey"`
		Name string     `json:"name" yaml:"name"`
		Type ColumnType `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=text number dropdown"`
	}

	Row struct {
		Key  string `json:"key" yaml:"key" validate:"required,fieldkey"`
		Name string `json:"name" yaml:"name"`
	}

	// TableConfig describes a fixed rows × columns matrix.
	TableConfig struct {
		Title string   `json:"title,omitempty" yaml:"title,omitempty"`
		Cols  []Column `json:"cols" yaml:"cols" validate:"required,min=1,dive"`
		Rows  []Row    `json:"rows" yaml:"rows" validate:"required,min=1,dive"`
	}

	Option struct {
		Label string `json:"label" yaml:"label"`
		Value string `json:"value" yaml:"value" validate:"required"`
	}

	// OptionsConfig configures dropdown and multiSelect fields.
	OptionsConfig struct {
		Highlight bool     `json:"highlight,omitempty" yaml:"highlight,omitempty"`
		Options   []Option `json:"options" yaml:"options" validate:"required,min=1,dive"`
	}

	// AllowAddConfig configures a user-extensible sequence of rows.
	AllowAddConfig struct {
		HeaderWithIndex string `json:"headerWithIndex,omitempty" yaml:"headerWithIndex,omitempty"`
		ShowTotal       bool   `json:"showTotal,omitempty" yaml:"showTotal,omitempty"`
		Max             int    `json:"max,omitempty" yaml:"max,omitempty" validate:"min=0"`
		Fields          Fields `json:"fields" yaml:"fields"`
	}

	// AutoRowConfig configures a sequence of rows sized by a count entered by the user.
	// Max bounds the count; DefaultMaxAutoRows applies when it is 0.
	AutoRowConfig struct {
		Label  string `json:"label" yaml:"label"`
		Max    int    `json:"max,omitempty" yaml:"max,omitempty" validate:"min=0"`
		Fields Fields `json:"fields" yaml:"fields"`
	}

	// SummaryConfig configures a computed field.
	// Paths are absolute within the report section's value tree.
	SummaryConfig struct {
		SummaryFields []string `json:"summaryFields,omitempty" yaml:"summaryFields,omitempty" validate:"required_without=DivideFields"`
		DivideFields  []string `json:"divideFields,omitempty" yaml:"divideFields,omitempty"`
		Footer        string   `json:"footer,omitempty" yaml:"footer,omitempty"`
	}

	// FileConfig configures a file attachment field.
	FileConfig struct {
		Path   string `json:"path" yaml:"path"`
		Accept string `json:"accept,omitempty" yaml:"accept,omitempty"`
	}
)

const (
	ColumnText     ColumnType = "text"
	ColumnNumber   ColumnType = "number"
	ColumnDropdown ColumnType = "dropdown"
)

func (TableConfig) configType() []Type    { return []Type{TypeTable} }
func (OptionsConfig) configType() []Type  { return []Type{TypeDropdown, TypeMultiSelect} }
func (AllowAddConfig) configType() []Type { return []Type{TypeAllowAdd} }
func (AutoRowConfig) configType() []Type  { return []Type{TypeAutoRow} }
func (SummaryConfig) configType() []Type  { return []Type{TypeSummary} }
func (FileConfig) configType() []Type     { return []Type{TypeFile} }

// newConfig returns an empty config for t, or nil when t takes no config.
func newConfig(t Type) Config {
	switch t {
	case TypeTable:
		return new(TableConfig)
	case TypeDropdown, TypeMultiSelect:
		return new(OptionsConfig)
	case TypeAllowAdd:
		return new(AllowAddConfig)
	case TypeAutoRow:
		return new(AutoRowConfig)
	case TypeSummary:
		return new(SummaryConfig)
	case TypeFile:
		return new(FileConfig)
	}
	return nil
}

// NeedsConfig reports whether fields of type t must carry a config.
func NeedsConfig(t Type) bool {
	switch t {
	case TypeTable, TypeDropdown, TypeMultiSelect, TypeAllowAdd, TypeAutoRow, TypeSummary:
		return true
	}
	return false
}

// Label returns the label of the option holding value, or value itself.
func (c *OptionsConfig) Label(value string) string {
	for _, o := range c.Options {
		if o.Value == value {
			if o.Label != "" {
				return o.Label
			}
			break
		}
	}
	return value
}

func (c *OptionsConfig) Has(value string) bool {
	for _, o := range c.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Column returns the column with key.
func (c *TableConfig) Column(key string) (Column, bool) {
	for _, col := range c.Cols {
		if col.Key == key {
			return col, true
		}
	}
	return Column{}, false
}

func (c *TableConfig) HasRow(key string) bool {
	for _, r := range c.Rows {
		if r.Key == key {
			return true
		}
	}
	return false
}

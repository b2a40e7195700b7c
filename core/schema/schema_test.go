package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/schoolstats/core"
)

const docJSON = `{
	"info": {
		"key": "info",
		"name": "General information",
		"fields": {
			"zeta": {"key": "zeta", "name": "Z", "type": "text"},
			"alpha": {"key": "alpha", "name": "A", "type": "number"},
			"level": {
				"key": "level", "name": "Level", "type": "dropdown",
				"config": {"highlight": true, "options": [{"label": "One", "value": "1"}]}
			},
			"total": {"key": "total", "name": "Total", "type": "summary", "config": {"summaryFields": ["info.zeta", "info.alpha"], "footer": "pupils"}}
		}
	},
	"classes": {
		"key": "classes", "name": "Classes", "type": "allowAdd",
		"config": {"max": 3, "headerWithIndex": "Class", "fields": {"name": {"key": "name", "name": "Name", "type": "text"}}}
	}
}`

const docYAML = `
info:
  key: info
  name: General information
  fields:
    zeta: {key: zeta, name: Z, type: text}
    alpha: {key: alpha, name: A, type: number}
    grid:
      key: grid
      name: Grid
      type: table
      config:
        title: Pupils
        cols: [{key: boys, name: Boys, type: number}]
        rows: [{key: g1, name: Grade 1}]
`

func TestFields_UnmarshalJSON(t *testing.T) {
	var doc Fields
	require.NoError(t, json.Unmarshal([]byte(docJSON), &doc))

	assert.Equal(t, []string{"info", "classes"}, doc.Keys())
	info, ok := doc.Get("info")
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "level", "total"}, info.Fields.Keys())
	assert.True(t, info.HasFields())
	assert.Equal(t, Type(""), info.Type)

	level, _ := info.Fields.Get("level")
	require.NotNil(t, level.Options())
	assert.True(t, level.Options().Highlight)
	assert.Equal(t, "One", level.Options().Label("1"))
	assert.Equal(t, "2", level.Options().Label("2"))

	total, _ := info.Fields.Get("total")
	require.NotNil(t, total.Summary())
	assert.Equal(t, []string{"info.zeta", "info.alpha"}, total.Summary().SummaryFields)
	assert.Nil(t, total.Table())

	classes, _ := doc.Get("classes")
	require.NotNil(t, classes.AllowAdd())
	assert.Equal(t, 3, classes.AllowAdd().Max)
	assert.Equal(t, []string{"name"}, classes.RowFields().Keys())
}

func TestFields_MarshalJSON_keepsOrder(t *testing.T) {
	var doc Fields
	require.NoError(t, json.Unmarshal([]byte(docJSON), &doc))

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var again Fields
	require.NoError(t, json.Unmarshal(b, &again))
	info, _ := again.Get("info")
	assert.Equal(t, []string{"info", "classes"}, again.Keys())
	assert.Equal(t, []string{"zeta", "alpha", "level", "total"}, info.Fields.Keys())
}

func TestField_unknownType(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "top level", data: `{"x": {"key": "x", "type": "slider"}}`},
		{name: "nested", data: `{"x": {"key": "x", "fields": {"y": {"key": "y", "type": "radio"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc Fields
			err := json.Unmarshal([]byte(tt.data), &doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), ErrUnknownType.Error())
		})
	}
}

func TestFields_UnmarshalJSON_malformed(t *testing.T) {
	var doc Fields
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &doc))
	assert.NoError(t, json.Unmarshal([]byte(`null`), &doc))
	assert.Equal(t, 0, doc.Len())
}

func TestFields_YAML(t *testing.T) {
	var doc Fields
	require.NoError(t, yaml.Unmarshal([]byte(docYAML), &doc))

	info, ok := doc.Get("info")
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "grid"}, info.Fields.Keys())

	grid, _ := info.Fields.Get("grid")
	require.NotNil(t, grid.Table())
	assert.Equal(t, "Pupils", grid.Table().Title)
	col, ok := grid.Table().Column("boys")
	assert.True(t, ok)
	assert.Equal(t, ColumnNumber, col.Type)
	assert.True(t, grid.Table().HasRow("g1"))

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	var again Fields
	require.NoError(t, yaml.Unmarshal(out, &again))
	info, _ = again.Get("info")
	assert.Equal(t, []string{"zeta", "alpha", "grid"}, info.Fields.Keys())

	bad := "x: {key: x, type: slider}\n"
	assert.Error(t, yaml.Unmarshal([]byte(bad), &doc))
}

func TestField_links(t *testing.T) {
	src := `
pupils:
  name: Pupils
  type: number
  from: {section: TruongLopTre, path: info.tongSoTre}
rounds:
  name: Rounds
  type: allowAdd
  lockedBy: accreditation.none
  config:
    fields:
      year: {name: Year, type: text}
`
	var doc Fields
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	pupils, _ := doc.Get("pupils")
	assert.Equal(t, &Source{Section: "TruongLopTre", Path: "info.tongSoTre"}, pupils.From)
	rounds, _ := doc.Get("rounds")
	assert.Equal(t, "accreditation.none", rounds.LockedBy)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	var again Fields
	require.NoError(t, json.Unmarshal(b, &again))
	pupils, _ = again.Get("pupils")
	assert.Equal(t, "info.tongSoTre", pupils.From.Path)
	rounds, _ = again.Get("rounds")
	assert.Equal(t, "accreditation.none", rounds.LockedBy)
}

func TestNewFields_fillsKeys(t *testing.T) {
	fs := NewFields(&Field{Key: "a", Type: TypeText}, &Field{Key: "b", Type: TypeNumber})
	assert.Equal(t, []string{"a", "b"}, fs.Keys())
	assert.Len(t, fs.All(), 2)
	assert.True(t, Fields{}.IsZero())
}

func TestValidate(t *testing.T) {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)

	var ok Fields
	require.NoError(t, json.Unmarshal([]byte(docJSON), &ok))
	assert.NoError(t, Validate(ok, validate, translator))

	tests := []struct {
		name       string
		data       string
		wantFields []string
	}{
		{
			name:       "missing config",
			data:       `{"x": {"key": "x", "type": "dropdown"}}`,
			wantFields: []string{"x.config"},
		},
		{
			name:       "empty table",
			data:       `{"t": {"key": "t", "type": "table", "config": {"cols": [], "rows": [{"key": "r"}]}}}`,
			wantFields: []string{"t.config.cols"},
		},
		{
			name:       "negative max",
			data:       `{"a": {"key": "a", "type": "allowAdd", "config": {"max": -1, "fields": {"n": {"key": "n", "type": "text"}}}}}`,
			wantFields: []string{"a.config.max"},
		},
		{
			name:       "empty row template",
			data:       `{"a": {"key": "a", "type": "autoRow", "config": {"label": "n"}}}`,
			wantFields: []string{"a.config.fields"},
		},
		{
			name:       "summary without paths",
			data:       `{"s": {"key": "s", "type": "summary", "config": {"footer": "%"}}}`,
			wantFields: []string{"s.config.summaryFields"},
		},
		{
			name:       "key mismatch and bad key",
			data:       `{"x": {"key": "y z", "type": "text"}}`,
			wantFields: []string{"x.key", "x.key"},
		},
		{
			name:       "nested row field",
			data:       `{"a": {"key": "a", "type": "allowAdd", "config": {"fields": {"d": {"key": "d", "type": "dropdown", "config": {"options": []}}}}}}`,
			wantFields: []string{"a.config.fields.d.config.options"},
		},
		{
			name:       "source without path",
			data:       `{"x": {"key": "x", "type": "number", "from": {"section": "pupils"}}}`,
			wantFields: []string{"x.from.path"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc Fields
			require.NoError(t, json.Unmarshal([]byte(tt.data), &doc))
			err := Validate(doc, validate, translator)
			require.Error(t, err)
			verr, isVErr := err.(*core.ValidationError)
			require.True(t, isVErr)
			got := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

package widget

import (
	"fmt"
	"time"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/schema"
	"github.com/trezcool/schoolstats/core/valuetree"
)

// OpKind names a user action on a widget.
type OpKind string

const (
	OpSet        OpKind = "set"
	OpToggle     OpKind = "toggle"
	OpAddTag     OpKind = "addTag"
	OpRemoveTag  OpKind = "removeTag"
	OpClear      OpKind = "clear"
	OpSetCell    OpKind = "setCell"
	OpAddRow     OpKind = "addRow"
	OpRemoveRow  OpKind = "removeRow"
	OpResize     OpKind = "resize"
	OpSelectDay  OpKind = "selectDay"
	OpSetTime    OpKind = "setTime"
	OpDeleteFile OpKind = "deleteFile"
)

// Op is a user action on the widget bound at Path.
type Op struct {
	Kind  OpKind      `json:"op" validate:"required"`
	Path  string      `json:"path" validate:"required"`
	Value interface{} `json:"value"`
	Row   string      `json:"row,omitempty"`
	Col   string      `json:"col,omitempty"`
}

func errUnsupportedOp(op Op, t schema.Type) error {
	return core.NewFieldError(op.Path, fmt.Sprintf("operation %q is not supported by %s fields", op.Kind, t))
}

// Do resolves op on field f, whose current value is current, into the edits to commit.
func Do(f *schema.Field, current interface{}, op Op, loc *time.Location) ([]valuetree.Edit, error) {
	path := op.Path
	str := toString(op.Value)

	switch op.Kind {
	case OpSet:
		return set(f, path, current, op.Value)
	case OpClear:
		switch f.Type {
		case schema.TypeMultiSelect:
			return ClearTags(path), nil
		case schema.TypeAutoRow:
			return ResizeRows(f, path, current, "")
		}
		return edit(path, ""), nil
	case OpDeleteFile:
		if f.Type == schema.TypeFile {
			return DeleteFile(path), nil
		}
	case OpToggle:
		switch f.Type {
		case schema.TypeMultiSelect:
			return Toggle(f, path, current, str)
		case schema.TypeCheckbox:
			checked, _ := current.(bool)
			return SetChecked(path, !checked), nil
		}
	case OpAddTag:
		if f.Type == schema.TypeMultiSelect {
			return AddTag(f, path, current, str)
		}
	case OpRemoveTag:
		if f.Type == schema.TypeMultiSelect {
			return RemoveTag(path, current, str), nil
		}
	case OpSetCell:
		if f.Type == schema.TypeTable {
			return SetCell(f, path, op.Row, op.Col, str)
		}
	case OpAddRow:
		if f.Type == schema.TypeAllowAdd {
			return AddRow(f, path, current)
		}
	case OpRemoveRow:
		if f.Type == schema.TypeAllowAdd {
			return RemoveLastRow(f, path, current)
		}
	case OpResize:
		if f.Type == schema.TypeAutoRow {
			return ResizeRows(f, path, current, str)
		}
	case OpSelectDay:
		if f.Type == schema.TypeDate {
			ms := ToNumber(op.Value)
			if ms != ms || ms == 0 {
				return nil, core.NewFieldError(path, "invalid day")
			}
			return SelectDay(path, current, time.UnixMilli(int64(ms)), loc), nil
		}
	case OpSetTime:
		if f.Type == schema.TypeDate {
			return SetTimeOfDay(path, current, str, loc)
		}
	}
	return nil, errUnsupportedOp(op, f.Type)
}

func set(f *schema.Field, path string, current, value interface{}) ([]valuetree.Edit, error) {
	switch f.Type {
	case schema.TypeText, schema.TypeTextarea:
		return SetText(path, toString(value)), nil
	case schema.TypeNumber:
		return SetNumber(path, toString(value)), nil
	case schema.TypeDropdown:
		return Select(f, path, toString(value))
	case schema.TypeMultiSelect:
		return SetTags(f, path, SelectedValues(value))
	case schema.TypeCheckbox:
		checked, ok := value.(bool)
		if !ok {
			return nil, core.NewFieldError(path, "a boolean is expected")
		}
		return SetChecked(path, checked), nil
	case schema.TypeDate:
		if value == nil || value == "" {
			return edit(path, ""), nil
		}
		ms := ToNumber(value)
		if ms != ms {
			return nil, core.NewFieldError(path, "an epoch timestamp in milliseconds is expected")
		}
		return SetDate(path, time.UnixMilli(int64(ms))), nil
	case schema.TypeAutoRow:
		return ResizeRows(f, path, current, toString(value))
	case schema.TypeSummary, schema.TypeGroup, schema.TypeFile:
		return nil, core.NewFieldError(path, fmt.Sprintf("%s fields cannot be set directly", f.Type))
	}
	return edit(path, value), nil
}

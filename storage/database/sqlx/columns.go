package sqlxrepos

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolstats/core/valuetree"
)

// stringList is a JSONB array of strings.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *stringList) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*l = stringList{}
		return err
	}
	return json.Unmarshal(b, (*[]string)(l))
}

// treeColumn is a JSONB answers document.
type treeColumn valuetree.Tree

func (t treeColumn) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(t))
}

func (t *treeColumn) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*t = treeColumn{}
		return err
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(b, &m); err != nil {
		return errors.Wrap(err, "decoding answers")
	}
	*t = m
	return nil
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, errors.Errorf("unsupported JSONB source %T", src)
}

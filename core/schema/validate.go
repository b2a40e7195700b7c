package schema

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolstats/core"
)

var (
	fieldTypeTag  = "fieldtype"
	fieldTypeText = "unknown field type"

	configMissingText  = "this field type requires a config"
	configMismatchText = "config does not match the field type"
	keyMismatchText    = "key must match its key in the parent fields"
	rowFieldsText      = "row template must declare at least one field"
)

// InitValidators registers the schema validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(fieldTypeTag, fieldTypeValidation)
	core.RegisterCustomTranslation(validate, translator, fieldTypeTag, fieldTypeText)
}

func fieldTypeValidation(fl validator.FieldLevel) bool {
	return Type(fl.Field().String()).Valid()
}

// Validate checks a schema document and reports every problem found as a *core.ValidationError,
// each field error being keyed by the dotted schema path of the offending field.
func Validate(doc Fields, validate *validator.Validate, translator ut.Translator) error {
	v := docValidator{validate: validate, translator: translator}
	v.fields("", doc)
	if len(v.errs) > 0 {
		return core.NewValidationError(fmt.Errorf("invalid schema: %d error(s)", len(v.errs)), v.errs...)
	}
	return nil
}

type docValidator struct {
	validate   *validator.Validate
	translator ut.Translator
	errs       []core.FieldError
}

func (v *docValidator) add(path, msg string) {
	v.errs = append(v.errs, core.FieldError{Field: path, Error: msg})
}

func (v *docValidator) addStructErrs(path string, err error) {
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		v.add(path, err.Error())
		return
	}
	for _, fe := range verrs {
		// drop the struct name prefix from the namespace
		ns := fe.Namespace()
		for i := 0; i < len(ns); i++ {
			if ns[i] == '.' {
				ns = ns[i+1:]
				break
			}
		}
		v.add(join(path, ns), fe.Translate(v.translator))
	}
}

func (v *docValidator) fields(parent string, fs Fields) {
	_ = fs.Each(func(key string, f *Field) error {
		v.field(join(parent, key), key, f)
		return nil
	})
}

func (v *docValidator) field(path, key string, f *Field) {
	if f.Key != key {
		v.add(join(path, "key"), keyMismatchText)
	}
	v.addStructErrs(path, v.validate.Struct(f))

	cfgPath := join(path, "config")
	switch {
	case f.Config == nil && NeedsConfig(f.Type):
		v.add(cfgPath, configMissingText)
	case f.Config != nil && !configFits(f.Config, f.Type):
		v.add(cfgPath, configMismatchText)
	case f.Config != nil:
		v.addStructErrs(cfgPath, v.validate.Struct(f.Config))
	}

	if rows := f.RowFields(); f.Config != nil && (f.Type == TypeAllowAdd || f.Type == TypeAutoRow) {
		if rows.Len() == 0 {
			v.add(join(cfgPath, "fields"), rowFieldsText)
		}
		v.fields(join(cfgPath, "fields"), rows)
	}
	v.fields(join(path, "fields"), f.Fields)
}

func configFits(cfg Config, t Type) bool {
	for _, typ := range cfg.configType() {
		if typ == t {
			return true
		}
	}
	return false
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + "." + b
}

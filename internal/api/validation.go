package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// DefaultValidator is gin's struct validator with English messages keyed by
// JSON field names.
type DefaultValidator struct {
	once       sync.Once
	validate   *validator.Validate
	translator ut.Translator
}

var _ binding.StructValidator = &DefaultValidator{}

func init() {
	binding.Validator = &DefaultValidator{}
}

// ValidateStruct validates structs and pointers to structs; other values pass.
func (v *DefaultValidator) ValidateStruct(obj any) error {
	switch kindOfData(obj) {
	case reflect.Struct:
		v.lazyinit()
		return v.validate.Struct(obj)
	case reflect.Slice, reflect.Array:
		v.lazyinit()
		return v.validate.Var(obj, "dive")
	default:
		return nil
	}
}

// Engine returns the underlying validator.
func (v *DefaultValidator) Engine() any {
	v.lazyinit()
	return v.validate
}

// Translator returns the English translator.
func (v *DefaultValidator) Translator() ut.Translator {
	v.lazyinit()
	return v.translator
}

func (v *DefaultValidator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New(validator.WithRequiredStructEnabled())
		v.validate.SetTagName("binding")
		v.validate.RegisterTagNameFunc(jsonFieldName)

		eng := en.New()
		uni := ut.New(eng, eng)
		v.translator, _ = uni.GetTranslator("en")

		_ = en_translations.RegisterDefaultTranslations(v.validate, v.translator)

		v.registerCustomTranslations()
	})
}

type translation struct {
	tag      string
	text     string
	useParam bool
}

var customTranslations = []translation{
	{tag: "required", text: "{0} is required"},
	{tag: "max", text: "{0} must be at most {1}", useParam: true},
	{tag: "gt", text: "{0} must be greater than {1}", useParam: true},
	{tag: "gte", text: "{0} must be greater than or equal to {1}", useParam: true},
	{tag: "ne", text: "{0} must not be {1}", useParam: true},
	{tag: "oneof", text: "{0} must be one of [{1}]", useParam: true},
	{tag: "datetime", text: "{0} must be formatted as YYYY-MM-DD"},
	{tag: "isbn", text: "{0} must be a valid ISBN-10 or ISBN-13"},
}

func (v *DefaultValidator) registerCustomTranslations() {
	for _, tr := range customTranslations {
		_ = v.validate.RegisterTranslation(tr.tag, v.translator, func(t ut.Translator) error {
			return t.Add(tr.tag, tr.text, true)
		}, func(t ut.Translator, fe validator.FieldError) string {
			var msg string
			if tr.useParam {
				msg, _ = t.T(tr.tag, fe.Field(), fe.Param())
			} else {
				msg, _ = t.T(tr.tag, fe.Field())
			}
			return msg
		})
	}
}

// jsonFieldName reports fields by their JSON name so messages match the payload.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// translateValidationError returns the first translated field error, or the
// error text when err is not a validation failure.
func translateValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	if dv, ok := binding.Validator.(*DefaultValidator); ok {
		return verrs[0].Translate(dv.Translator())
	}

	return verrs[0].Error()
}

func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	valueType := value.Kind()

	if valueType == reflect.Pointer {
		valueType = value.Elem().Kind()
	}

	return valueType
}

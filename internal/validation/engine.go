// Package validation checks request input against declarative schemas.
//
// A schema is a plain struct: json tags name the accepted fields, validate
// tags hold the constraints. A schema may also implement Normalizer to trim
// and default values, and Messager to override the message of a rule.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/usercore/apiserver/internal/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is the envelope message of every validation failure.
const Message = "validation error"

// Normalizer is implemented by schemas that clean up decoded values
// (trimming, lowercasing, defaults) before constraints are checked.
type Normalizer interface {
	Normalize()
}

// Messager is implemented by schemas that override rule messages. Keys are
// "<field>.<tag>", for example "username.min".
type Messager interface {
	Messages() map[string]string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", validatePassword)
	_ = v.RegisterValidation("objectid", validateObjectID)
	return v
}

// Decode validates raw against schema T. Weak decoding converts strings into
// numbers and booleans, which is what query and path values need. All
// violations are collected; on failure the returned error is an
// *apperr.Error with code validation_error.
func Decode[T any](raw map[string]any, weak bool) (T, error) {
	var out T
	fields, err := schemaFields(reflect.TypeOf(out))
	if err != nil {
		return out, apperr.Internal(err)
	}

	var problems []apperr.FieldError
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mistyped := map[string]bool{}
	target := reflect.ValueOf(&out).Elem()
	for _, key := range keys {
		index, ok := fields[key]
		if !ok {
			problems = append(problems, apperr.FieldError{
				Field:   key,
				Message: fmt.Sprintf("%q is not allowed", key),
			})
			continue
		}
		field := target.Field(index)
		if err := decodeField(raw[key], field, weak); err != nil {
			mistyped[key] = true
			problems = append(problems, apperr.FieldError{
				Field:   key,
				Message: fmt.Sprintf("%s must be %s", key, typeName(field.Type())),
			})
		}
	}

	if n, ok := any(&out).(Normalizer); ok {
		n.Normalize()
	}

	var messages map[string]string
	if m, ok := any(&out).(Messager); ok {
		messages = m.Messages()
	}

	if err := validate.Struct(&out); err != nil {
		var verrs validator.ValidationErrors
		if !asValidationErrors(err, &verrs) {
			return out, apperr.Internal(err)
		}
		for _, fe := range verrs {
			field := fieldPath(fe)
			if mistyped[rootField(field)] {
				continue
			}
			problems = append(problems, apperr.FieldError{
				Field:   field,
				Message: message(fe, field, messages),
			})
		}
	}

	if len(problems) > 0 {
		return out, apperr.Validation(Message, problems...)
	}
	return out, nil
}

func decodeField(value any, field reflect.Value, weak bool) error {
	if value == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: weak,
		Result:           field.Addr().Interface(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(value)
}

// schemaFields maps json names to struct field indexes.
func schemaFields(t reflect.Type) (map[string]int, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("validation: schema %v is not a struct", t)
	}
	fields := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields[name] = i
	}
	return fields, nil
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return "an object"
	}
}

// fieldPath drops the schema type name from the namespace, leaving e.g.
// "team[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func rootField(path string) string {
	if i := strings.IndexAny(path, ".["); i >= 0 {
		return path[:i]
	}
	return path
}

func message(fe validator.FieldError, field string, custom map[string]string) string {
	if msg, ok := custom[field+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := custom[rootField(field)+"."+fe.Tag()]; ok {
		return msg
	}

	param := fe.Param()
	switch fe.Tag() {
	case "required", "required_without", "required_if":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "alphanum":
		return field + " must only contain alpha-numeric characters"
	case "oneof":
		return field + " must be one of: " + strings.Join(strings.Fields(param), ", ")
	case "min":
		if isText(fe.Kind()) {
			return fmt.Sprintf("%s must be at least %s characters long", field, param)
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s items", field, param)
		}
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "max":
		if isText(fe.Kind()) {
			return fmt.Sprintf("%s cannot exceed %s characters", field, param)
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s items", field, param)
		}
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "password":
		return field + " must contain at least one lowercase letter, one uppercase letter, and one number"
	case "objectid":
		return field + " must be a valid id"
	case "unique":
		return field + " must not contain duplicates"
	}
	return field + " is invalid"
}

func isText(k reflect.Kind) bool {
	return k == reflect.String
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func validatePassword(fl validator.FieldLevel) bool {
	var lower, upper, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

func validateObjectID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return objectIDPattern.MatchString(s) && primitive.IsValidObjectID(s)
}

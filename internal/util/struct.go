package util

import (
	"reflect"

	"github.com/pkg/errors"
)

// IsStructInitialized checks that every exported field of the struct s
// points to is set. Fields tagged `wire:"-"` are skipped.
func IsStructInitialized(s any) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return errors.New("struct is nil")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errors.Errorf("expected struct, got %s", v.Kind())
	}

	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("wire") == "-" {
			continue
		}
		if v.Field(i).IsZero() {
			return errors.Errorf("struct field %s is not initialized", field.Name)
		}
	}

	return nil
}

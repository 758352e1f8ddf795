package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// loadFromEnv walks the config tree and overrides every field whose `env`
// tag names a set, non-empty environment variable.
func loadFromEnv(cfg *Config) error {
	return applyEnv(reflect.ValueOf(cfg).Elem())
}

func applyEnv(val reflect.Value) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if field.Kind() == reflect.Struct {
			if err := applyEnv(field); err != nil {
				return err
			}
			continue
		}

		name := typ.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		if err := setFromEnv(field, raw); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
	}
	return nil
}

// setFromEnv parses raw into the field. The config sections only carry
// strings, bools, ints, durations, and comma-separated string lists;
// anything else in a tagged field is a programming error.
func setFromEnv(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(out)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

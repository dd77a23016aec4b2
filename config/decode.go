package config

import (
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// DurationMillisHook decodes bare numeric configuration values into
// durations as milliseconds, the unit the external configuration surface
// uses. Duration strings like "10m" are handled by the string hook and pass
// through untouched.
func DurationMillisHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Millisecond, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
		}
		return data, nil
	}
}

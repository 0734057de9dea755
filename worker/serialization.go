package worker

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// serializeArgs converts a Publisher call's arguments to JSON bytes.
func serializeArgs(args ...any) ([]byte, error) {
	return json.Marshal(args)
}

// deserializeArgs converts JSON bytes back to a slice of any.
func deserializeArgs(data []byte) ([]any, error) {
	var args []any
	err := json.Unmarshal(data, &args)
	return args, err
}

// prepareArgForCall makes the JSON-decoded arg assignable to
// targetType. Every handler in this codebase takes plain strings, so
// the only case that matters beyond direct assignability is a nil
// JSON value against a nillable parameter.
func prepareArgForCall(arg any, targetType reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch targetType.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
			return reflect.Zero(targetType), nil
		default:
			return reflect.Value{}, fmt.Errorf("nil argument provided for non-nillable type %s", targetType)
		}
	}

	argVal := reflect.ValueOf(arg)
	if argVal.Type().AssignableTo(targetType) {
		return argVal, nil
	}

	return reflect.Value{}, fmt.Errorf("type mismatch: cannot assign %s to %s", argVal.Type(), targetType)
}

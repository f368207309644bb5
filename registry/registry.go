// Package registry operates the global registry of target finders.
package registry

import (
	"runtime"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// RegDebugInfo records where a registration was made.
type RegDebugInfo struct {
	RegistrarLoc string
}

// getCallerName returns the function that called the Register function.
func getCallerName() string {
	pc, _, _, ok := runtime.Caller(2)
	details := runtime.FuncForPC(pc)
	if ok && details != nil {
		return details.Name()
	}
	return "unknown"
}

// TransformAttributes decodes an attribute map into a native config struct using its json tags.
// Attributes the struct does not declare are an error.
func TransformAttributes[T any](attributes map[string]interface{}) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return out, errors.Wrap(err, "cannot build attribute decoder")
	}
	if err := decoder.Decode(attributes); err != nil {
		return out, errors.Wrap(err, "invalid attributes")
	}
	return out, nil
}

package registry

import (
	"context"
	"sort"

	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"

	"go.viam.com/handeye/logging"
	"go.viam.com/handeye/target"
	"go.viam.com/handeye/utils"
)

// A CreateTargetFinder creates a target finder from its configured attributes.
type CreateTargetFinder func(ctx context.Context, attributes map[string]interface{}, logger logging.Logger) (target.Finder, error)

// target finder registry.
var targetFinderRegistry = make(map[string]TargetFinder)

// TargetFinder stores a target finder constructor (mandatory).
type TargetFinder struct {
	RegDebugInfo
	Constructor CreateTargetFinder
}

// RegisterTargetFinder registers a target finder type to a registration.
func RegisterTargetFinder(typeName string, registration TargetFinder) {
	registration.RegistrarLoc = getCallerName()
	if _, old := targetFinderRegistry[typeName]; old {
		panic(errors.Errorf("trying to register two target finders with the same type: %s", typeName))
	}
	if registration.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for target finder: %s", typeName))
	}
	targetFinderRegistry[typeName] = registration
}

// TargetFinderLookup looks up a target finder registration by type. nil is returned if
// there is no registration.
func TargetFinderLookup(typeName string) *TargetFinder {
	registration, ok := RegisteredTargetFinders()[typeName]
	if ok {
		return &registration
	}
	return nil
}

// RegisteredTargetFinders returns a copy of the registered target finders.
func RegisteredTargetFinders() map[string]TargetFinder {
	copied, err := copystructure.Copy(targetFinderRegistry)
	if err != nil {
		panic(err)
	}
	registry, ok := copied.(map[string]TargetFinder)
	if !ok {
		panic(utils.NewUnexpectedTypeError(registry, copied))
	}
	return registry
}

// TargetFinderTypes lists the registered target finder types in order.
func TargetFinderTypes() []string {
	types := make([]string, 0, len(targetFinderRegistry))
	for typeName := range targetFinderRegistry {
		types = append(types, typeName)
	}
	sort.Strings(types)
	return types
}

// NewTargetFinder constructs a finder of the registered type.
func NewTargetFinder(
	ctx context.Context,
	typeName string,
	attributes map[string]interface{},
	logger logging.Logger,
) (target.Finder, error) {
	registration := TargetFinderLookup(typeName)
	if registration == nil {
		return nil, errors.Errorf("unknown target finder type %q, registered types are %v", typeName, TargetFinderTypes())
	}
	finder, err := registration.Constructor(ctx, attributes, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create %q target finder", typeName)
	}
	return finder, nil
}

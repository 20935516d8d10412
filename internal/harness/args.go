package harness

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/habitsync/internal/model"
)

var errBadArg = errors.New("bad argument")

// args wraps YAML-parsed step arguments. yaml.v3 yields int for integer
// literals and float64 for the rest.
type args map[string]any

func (a args) str(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a args) id(key string) model.EntityID {
	switch v := a[key].(type) {
	case string:
		return model.EntityID(v)
	case int:
		return model.EntityID(fmt.Sprint(v))
	}
	return ""
}

func (a args) float(key string) (float64, error) {
	switch v := a[key].(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case nil:
		return 0, fmt.Errorf("%w: %s is required", errBadArg, key)
	}
	return 0, fmt.Errorf("%w: %s must be a number, got %T", errBadArg, key, a[key])
}

func (a args) intOr(key string, def int) (int, error) {
	if _, ok := a[key]; !ok {
		return def, nil
	}
	f, err := a.float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", errBadArg, key, f)
	}
	return int(f), nil
}

func (a args) ids(key string) ([]model.EntityID, error) {
	list, ok := a[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", errBadArg, key)
	}
	out := make([]model.EntityID, 0, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be a string", errBadArg, key, i)
		}
		out = append(out, model.EntityID(s))
	}
	return out, nil
}

package index

import (
	"sort"

	amerrors "github.com/Aman-CERP/batchidx/internal/errors"
	"github.com/Aman-CERP/batchidx/internal/store"
)

// Properties maps property keys to values. A value is a string, a number
// (any Go integer or float type), a bool, or a slice/array of those.
type Properties map[string]any

// keyValidator is implemented by backends that reserve some property keys.
type keyValidator interface {
	ValidateKey(key string) error
}

// normalize flattens props into pairs in key order. Arrays produce one pair
// per element.
func normalize(props Properties, validate func(string) error) ([]store.Pair, error) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]store.Pair, 0, len(props))
	for _, k := range keys {
		if err := checkKey(k, validate); err != nil {
			return nil, err
		}
		values, err := store.ValuesOf(props[k])
		if err != nil {
			return nil, amerrors.InvalidPropertyError(k, err.Error())
		}
		for _, v := range values {
			pairs = append(pairs, store.Pair{Key: k, Value: v})
		}
	}
	return pairs, nil
}

func checkKey(key string, validate func(string) error) error {
	if key == "" {
		return amerrors.InvalidPropertyError(key, "empty key")
	}
	if validate != nil {
		if err := validate(key); err != nil {
			return amerrors.InvalidPropertyError(key, err.Error())
		}
	}
	return nil
}

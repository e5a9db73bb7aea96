package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractFields returns the values at each JSONPath expression in paths,
// in the same order. $.Worker1.total and Worker1.total are equivalent;
// $.items[0] and $.items[*] map to gjson's items.0 and items.#. Every
// missing path is reported in the joined error.
func ExtractFields(body []byte, paths []string) ([]any, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON in stats payload")
	}

	values := make([]any, len(paths))
	var errs []error
	for i, p := range paths {
		v := gjson.GetBytes(body, toGJSONPath(p))
		if !v.Exists() {
			errs = append(errs, fmt.Errorf("field %q not found", p))
			continue
		}
		values[i] = v.Value()
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return values, nil
}

var bracketReplacer = strings.NewReplacer("[*]", ".#", "[", ".", "]", "")

func toGJSONPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	return bracketReplacer.Replace(path)
}

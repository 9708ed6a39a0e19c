package pipeline

import (
	"encoding/json"
	"fmt"
)

// InvalidImageFormatError is returned when an image field is neither a
// string nor a mapping with a name.
type InvalidImageFormatError struct {
	// Value is the offending value, serialized as JSON
	Value string
}

func (e *InvalidImageFormatError) Error() string {
	return fmt.Sprintf("%q is not a valid image", e.Value)
}

// ExtractImageName normalizes a declared image into a plain reference.
// A mapping's name may be any scalar; YAML reads `name: 18` as an int.
func ExtractImageName(image any) (string, error) {
	switch v := image.(type) {
	case string:
		return v, nil
	case map[string]any:
		if name := scalarString(v["name"]); name != "" {
			return name, nil
		}
	}
	return "", &InvalidImageFormatError{Value: serialize(image)}
}

func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(v)
	}
	return ""
}

func serialize(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

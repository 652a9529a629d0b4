package arm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// NormalizeBody converts a request body that may contain comments or
// trailing commas into compact JSON. The body must be a JSON object.
func NormalizeBody(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}

	plain := jsonc.ToJSON(trimmed)

	var obj map[string]any
	if err := json.Unmarshal(plain, &obj); err != nil {
		return nil, fmt.Errorf("request body is not a JSON object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("request body is null")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, plain); err != nil {
		return nil, fmt.Errorf("compact request body: %w", err)
	}
	return buf.Bytes(), nil
}

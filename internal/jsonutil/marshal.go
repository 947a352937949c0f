package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal is json.Marshal without HTML escaping: '<', '>' and '&' are
// written as is, including inside json.RawMessage values. Escaped they
// take six bytes each and a stored record could outgrow a frame.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("json.Encoder.Encode: %w", err)
	}

	// Encode дописывает перевод строки
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

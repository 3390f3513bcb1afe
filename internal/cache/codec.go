package cache

import (
	"bytes"
	"encoding/gob"
)

func init() {
	// Set outputs store composite values inside the interface field.
	gob.Register([]any(nil))
	gob.Register([]string(nil))
}

// encodeValue serializes a value using encoding/gob for BLOB storage.
// Callers must ensure that values are gob-encodable; OutputValue carries an
// interface field, so concrete user types crossing it need gob.Register.
func encodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}

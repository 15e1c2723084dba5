// Package jsoncodec is the JSON codec used for report payloads and the
// status endpoint.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}

// ToMap round-trips v through JSON into a generic map, which is the shape
// protobuf Struct values and log fields expect.
func ToMap(v any) (map[string]any, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

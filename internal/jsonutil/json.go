// Package jsonutil provides the goccy/go-json encode/decode helpers shared
// by the HTTP submission API and the push-channel wire frames.
package jsonutil

import (
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Encode marshals the value to JSON bytes without HTML escaping.
func Encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	return data, nil
}

// Write encodes and writes JSON directly to the writer without HTML escaping.
func Write(w io.Writer, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write encoded json: %w", err)
	}
	return nil
}

// Decode unmarshals JSON bytes into v.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}

package sourcemap

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when the SourceMap layout changes
const schemaVersion uint16 = 1

const magic = "irasm/sourcemap"

type envelope struct {
	Magic  string     `msgpack:"magic"`
	Schema uint16     `msgpack:"schema"`
	Map    *SourceMap `msgpack:"map"`
}

// Encode writes m as msgpack.
func Encode(w io.Writer, m *SourceMap) error {
	if m == nil {
		return fmt.Errorf("encode source map: nil map")
	}
	return msgpack.NewEncoder(w).Encode(&envelope{Magic: magic, Schema: schemaVersion, Map: m})
}

// Decode reads a map written by Encode.
func Decode(r io.Reader) (*SourceMap, error) {
	var env envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode source map: %w", err)
	}
	if env.Magic != magic {
		return nil, fmt.Errorf("decode source map: bad magic %q", env.Magic)
	}
	if env.Schema != schemaVersion {
		return nil, fmt.Errorf("decode source map: unsupported schema %d (want %d)", env.Schema, schemaVersion)
	}
	if env.Map == nil {
		return nil, fmt.Errorf("decode source map: empty container")
	}
	env.Map.ensureMaps()
	return env.Map, nil
}

// Marshal is Encode into a byte slice.
func Marshal(m *SourceMap) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal is Decode from a byte slice.
func Unmarshal(data []byte) (*SourceMap, error) {
	return Decode(bytes.NewReader(data))
}

package fileformat

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Current container schema - increment when the envelope layout changes.
const containerSchemaVersion uint16 = 1

const containerMagic = "irasm/module"

type moduleEnvelope struct {
	Magic  string          `msgpack:"magic"`
	Schema uint16          `msgpack:"schema"`
	Module *CompiledModule `msgpack:"module"`
}

// Encode writes m as a msgpack container. Pool vectors keep their order.
func Encode(w io.Writer, m *CompiledModule) error {
	if m == nil {
		return fmt.Errorf("encode: nil module")
	}
	enc := msgpack.NewEncoder(w)
	return enc.Encode(&moduleEnvelope{Magic: containerMagic, Schema: containerSchemaVersion, Module: m})
}

// Decode reads a module written by Encode.
func Decode(r io.Reader) (*CompiledModule, error) {
	var env moduleEnvelope
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	if env.Magic != containerMagic {
		return nil, fmt.Errorf("decode module: not a module container (magic %q)", env.Magic)
	}
	if env.Schema != containerSchemaVersion {
		return nil, fmt.Errorf("decode module: unsupported schema %d (want %d)", env.Schema, containerSchemaVersion)
	}
	if env.Module == nil {
		return nil, fmt.Errorf("decode module: empty container")
	}
	return env.Module, nil
}

// Marshal is Encode into a byte slice.
func Marshal(m *CompiledModule) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal is Decode from a byte slice.
func Unmarshal(data []byte) (*CompiledModule, error) {
	return Decode(bytes.NewReader(data))
}

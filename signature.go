package jitlink

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Param is one declared parameter of the entry function.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Category string `json:"category"` // scalar, pointer, float ...
}

// Signature is the outward-facing description of a linked entry function,
// supplied by the driving tool (which parsed the source declaration) and
// carried on the LinkedModule for the execution harness.
type Signature struct {
	Name   string  `json:"name"`
	Return string  `json:"return_type"`
	Params []Param `json:"parameters"`
}

// Validate checks the signature against the harness's argument array, whose
// last slot is reserved for the return value.
func (s *Signature) Validate(argsArraySize int) error {
	if max := argsArraySize - 1; len(s.Params) > max {
		return errors.Errorf("function %s has %d parameters but args array supports max %d (array_size=%d, last slot reserved for return value)",
			s.Name, len(s.Params), max, argsArraySize)
	}
	return nil
}

// Metadata is the JSON record the driving tool persists next to a linked
// image so the harness can marshal arguments without reparsing the source.
type Metadata struct {
	Signature     Signature `json:"signature"`
	CodeBase      uint64    `json:"code_base"`
	ArgsBase      uint64    `json:"args_base"`
	ArgsArraySize int       `json:"args_array_size"`
	EntryPoint    uint64    `json:"entry_point"`
	Size          int       `json:"size"`
}

// WriteMetadata emits the module's metadata record for the harness.
func (m *LinkedModule) WriteMetadata(out io.Writer, argsBase uint64, argsArraySize int) error {
	if m.Signature == nil {
		return errors.New("module carries no signature")
	}
	if err := m.Signature.Validate(argsArraySize); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(Metadata{
		Signature:     *m.Signature,
		CodeBase:      m.Base,
		ArgsBase:      argsBase,
		ArgsArraySize: argsArraySize,
		EntryPoint:    m.Entry,
		Size:          m.Size,
	})
}

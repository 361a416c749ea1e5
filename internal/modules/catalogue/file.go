package catalogue

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of a catalogue file.
type document struct {
	Modules []Descriptor `yaml:"modules"`
}

// Decode reads descriptors from YAML. Unknown keys are rejected.
func Decode(r io.Reader) ([]Descriptor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parsing catalogue: empty document")
		}
		return nil, fmt.Errorf("parsing catalogue: %w", err)
	}
	return doc.Modules, nil
}

// LoadFile reads and validates a catalogue file.
func LoadFile(path string, opts ...Option) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}

	descriptors, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	cat, err := New(descriptors, opts...)
	if err != nil {
		return nil, fmt.Errorf("validating catalogue %s: %w", path, err)
	}
	return cat, nil
}

// Encode writes descriptors as a YAML catalogue document.
func Encode(w io.Writer, descriptors []Descriptor) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{Modules: descriptors}); err != nil {
		return fmt.Errorf("encoding catalogue: %w", err)
	}
	return enc.Close()
}

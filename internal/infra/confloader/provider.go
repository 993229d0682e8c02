package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// mapProvider feeds in-memory values to koanf.
type mapProvider map[string]any

func (mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("confloader: map provider has no byte form")
}

// Read unflattens dotted keys so they merge with nested file values
// instead of replacing whole sections.
func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}

package lfas

import (
	"fmt"

	"github.com/rprado/lfas/services/lfas/errs"
	"github.com/rprado/lfas/services/lfas/field"
)

// Default configuration values, per the engine's configuration surface.
const (
	DefaultK1        = 1.2
	DefaultFieldB    = 0.75
	DefaultBatchSize = 100_000
	DefaultMapSize   = 10 * 1 << 30
)

// DefaultFieldWeights returns the default per-field BM25F weight table:
// cep=5.0, numero=4.0, rua=2.0, bairro=1.5, municipio=1.0, estado=1.0,
// everything else 1.0.
func DefaultFieldWeights() map[field.Tag]float64 {
	return map[field.Tag]float64{
		field.PostalCode:   5.0,
		field.Number:       4.0,
		field.Street:       2.0,
		field.Neighborhood: 1.5,
		field.City:         1.0,
		field.State:        1.0,
	}
}

// Config configures an Engine at Open. Field names in FieldWeights and
// FieldB are the engine's own field.Tag enumeration, not the canonical
// string names used at the record boundary.
type Config struct {
	// StoragePath is the directory the storage backend opens its files
	// under. Required.
	StoragePath string

	// FieldWeights overrides BM25F w_f per field. Unset fields fall back
	// to DefaultFieldWeights.
	FieldWeights map[field.Tag]float64

	// FieldB overrides BM25F b_f per field, in [0,1]. Unset fields fall
	// back to DefaultFieldB.
	FieldB map[field.Tag]float64

	// K1 is the global BM25F k1 parameter. Zero means DefaultK1.
	K1 float64

	// BatchSize is the pending-entry count that triggers an auto-flush
	// from AddDocument. Zero means DefaultBatchSize.
	BatchSize int

	// MapSize is the persistent storage map-size budget in bytes. Zero
	// means DefaultMapSize.
	MapSize int64

	// InMemory opens an in-memory storage backend instead of a
	// persistent one; StoragePath is ignored when true. Intended for
	// tests and ephemeral indexes.
	InMemory bool
}

// Validate checks Config for the constraints the engine requires at
// Open, returning errs.ErrConfig wrapped with a description of what
// failed.
func (c Config) Validate() error {
	if !c.InMemory && c.StoragePath == "" {
		return fmt.Errorf("%w: storage_path must not be empty", errs.ErrConfig)
	}
	for tag, w := range c.FieldWeights {
		if !tag.Valid() {
			return fmt.Errorf("%w: unknown field tag %v in field_weights", errs.ErrConfig, tag)
		}
		if w <= 0 {
			return fmt.Errorf("%w: field_weights[%s] = %v, must be positive", errs.ErrConfig, tag, w)
		}
	}
	for tag, b := range c.FieldB {
		if !tag.Valid() {
			return fmt.Errorf("%w: unknown field tag %v in field_b", errs.ErrConfig, tag)
		}
		if b < 0 || b > 1 {
			return fmt.Errorf("%w: field_b[%s] = %v, must be in [0,1]", errs.ErrConfig, tag, b)
		}
	}
	if c.K1 < 0 {
		return fmt.Errorf("%w: k1 = %v, must be positive", errs.ErrConfig, c.K1)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch_size = %v, must be positive", errs.ErrConfig, c.BatchSize)
	}
	if c.MapSize < 0 {
		return fmt.Errorf("%w: map_size = %v, must be positive", errs.ErrConfig, c.MapSize)
	}
	return nil
}

// weightSlice materializes FieldWeights into a dense slice indexed by
// field.Tag, for the scorer's Params.
func (c Config) weightSlice() []float64 {
	defaults := DefaultFieldWeights()
	out := make([]float64, field.Count)
	for _, tag := range field.All() {
		if w, ok := c.FieldWeights[tag]; ok {
			out[tag] = w
		} else if w, ok := defaults[tag]; ok {
			out[tag] = w
		}
	}
	return out
}

func (c Config) bSlice() []float64 {
	out := make([]float64, field.Count)
	for _, tag := range field.All() {
		if b, ok := c.FieldB[tag]; ok {
			out[tag] = b
		} else {
			out[tag] = DefaultFieldB
		}
	}
	return out
}

func (c Config) k1() float64 {
	if c.K1 > 0 {
		return c.K1
	}
	return DefaultK1
}

func (c Config) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

func (c Config) mapSize() int64 {
	if c.MapSize > 0 {
		return c.MapSize
	}
	return DefaultMapSize
}

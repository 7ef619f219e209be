package record

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no patient exists for the given id.
var ErrNotFound = errors.New("patient not found")

// ErrVersionConflict is returned when a compare-and-swap write loses the
// race too many times.
var ErrVersionConflict = errors.New("patient version conflict")

// Mutator transforms a patient in place. Returning an error aborts the
// update with no effects, which is what gives the merge engine its
// all-or-nothing guarantee.
type Mutator func(p *Patient) error

// Store is the persistence boundary for patient aggregates. Implementations
// must serialize Update calls per patient id while letting writes for
// different patients proceed in parallel.
type Store interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id uuid.UUID) (*Patient, error)
	// Update applies the mutator to the current state under the patient's
	// write serialization and returns the resulting state. If the mutator
	// errors the stored state is untouched.
	Update(ctx context.Context, id uuid.UUID, fn Mutator) (*Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

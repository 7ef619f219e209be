package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubpointKind discriminates the three subpoint shapes on the wire.
type SubpointKind string

const (
	SubpointNote       SubpointKind = "note"
	SubpointProcedure  SubpointKind = "procedure"
	SubpointAntibiotic SubpointKind = "antibiotic"
)

// Subpoint is one clinical note attached to an issue. Detail is a closed
// union over the three shapes; consumers switch on the concrete type.
type Subpoint struct {
	ID         uuid.UUID `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Detail     SubpointDetail
}

// SubpointDetail is implemented only by NoteDetail, ProcedureDetail and
// AntibioticDetail.
type SubpointDetail interface {
	Kind() SubpointKind
	cloneDetail() SubpointDetail
}

// NoteDetail is a plain free-text observation.
type NoteDetail struct {
	Text string `json:"text"`
}

func (NoteDetail) Kind() SubpointKind { return SubpointNote }

func (d NoteDetail) cloneDetail() SubpointDetail { return d }

// ProcedureDetail records a dated procedure. A non-empty ChecklistKey links
// the procedure to a named follow-up template; the scheduler keys derived
// tasks off the owning subpoint's id.
type ProcedureDetail struct {
	Name           string `json:"name"`
	Date           Date   `json:"date"`
	Notes          string `json:"notes,omitempty"`
	ShowDayCounter bool   `json:"show_day_counter,omitempty"`
	ChecklistKey   string `json:"checklist_key,omitempty"`
}

func (ProcedureDetail) Kind() SubpointKind { return SubpointProcedure }

func (d ProcedureDetail) cloneDetail() SubpointDetail { return d }

// AntibioticDetail records an antibiotic course. StopDate is nil while the
// course is still running.
type AntibioticDetail struct {
	Name      string `json:"name"`
	StartDate Date   `json:"start_date"`
	StopDate  *Date  `json:"stop_date,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (AntibioticDetail) Kind() SubpointKind { return SubpointAntibiotic }

func (d AntibioticDetail) cloneDetail() SubpointDetail {
	c := d
	c.StopDate = cloneDate(d.StopDate)
	return c
}

// subpointEnvelope is the wire form: the detail fields are flattened next to
// a "kind" discriminator.
type subpointEnvelope struct {
	ID         uuid.UUID       `json:"id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Kind       SubpointKind    `json:"kind"`
	Detail     json.RawMessage `json:"detail"`
}

// MarshalJSON encodes the subpoint with its kind discriminator.
func (s Subpoint) MarshalJSON() ([]byte, error) {
	if s.Detail == nil {
		return nil, fmt.Errorf("subpoint %s has no detail", s.ID)
	}
	detail, err := json.Marshal(s.Detail)
	if err != nil {
		return nil, err
	}
	return json.Marshal(subpointEnvelope{
		ID:         s.ID,
		RecordedAt: s.RecordedAt,
		Kind:       s.Detail.Kind(),
		Detail:     detail,
	})
}

// UnmarshalJSON decodes a subpoint, rejecting unknown kinds so the union
// stays closed.
func (s *Subpoint) UnmarshalJSON(data []byte) error {
	var env subpointEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	s.ID = env.ID
	s.RecordedAt = env.RecordedAt

	switch env.Kind {
	case SubpointNote:
		var d NoteDetail
		if err := json.Unmarshal(env.Detail, &d); err != nil {
			return err
		}
		s.Detail = d
	case SubpointProcedure:
		var d ProcedureDetail
		if err := json.Unmarshal(env.Detail, &d); err != nil {
			return err
		}
		s.Detail = d
	case SubpointAntibiotic:
		var d AntibioticDetail
		if err := json.Unmarshal(env.Detail, &d); err != nil {
			return err
		}
		s.Detail = d
	default:
		return fmt.Errorf("unknown subpoint kind %q", env.Kind)
	}
	return nil
}

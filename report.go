package ent

import (
	"fmt"
	"time"

	"github.com/lab47/ent/pkg/entropy"
	"github.com/oklog/ulid/v2"
)

// Report is the outcome of analyzing a single object.
type Report struct {
	ID         ulid.ULID     `json:"id" cbor:"1,keyasint"`
	Path       string        `json:"path" cbor:"2,keyasint"`
	Source     string        `json:"source" cbor:"3,keyasint"`
	Size       int64         `json:"size" cbor:"4,keyasint"`
	Entropy    float64       `json:"entropy" cbor:"5,keyasint"`
	Class      entropy.Class `json:"class" cbor:"6,keyasint"`
	Sum        string        `json:"sum" cbor:"7,keyasint"`
	Expanded   string        `json:"expanded,omitempty" cbor:"8,keyasint,omitempty"`
	Empty      bool          `json:"empty,omitempty" cbor:"9,keyasint,omitempty"`
	AnalyzedAt time.Time     `json:"analyzed_at" cbor:"10,keyasint"`
}

// Headline is the result line printed ahead of the class description.
func (r *Report) Headline() string {
	return fmt.Sprintf("Entropy of %s: %.4f", r.Path, r.Entropy)
}

func (r *Report) String() string {
	return fmt.Sprintf("%s: %.4f (%s)", r.Path, r.Entropy, r.Class)
}

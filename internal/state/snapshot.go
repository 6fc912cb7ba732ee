// ABOUTME: StateSnapshot value type and its validating builder
// ABOUTME: Snapshots can only be produced through Builder.Build, which validates

package state

import (
	"fmt"
	"math"
	"time"
)

// MaxUserIDLength bounds user identifiers.
const MaxUserIDLength = 256

// Source records where the axis values came from.
type Source string

// Snapshot sources
const (
	SourceSelfReport Source = "self_report"
	SourceInferred   Source = "inferred"
	SourceMixed      Source = "mixed"
)

// ParseSource converts a wire value into a Source. Empty means self report.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "":
		return SourceSelfReport, nil
	case SourceSelfReport, SourceInferred, SourceMixed:
		return Source(s), nil
	default:
		return "", &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", s)}
	}
}

func (s Source) valid() bool {
	switch s {
	case SourceSelfReport, SourceInferred, SourceMixed:
		return true
	}
	return false
}

// Snapshot is one user's state at one point in time.
type Snapshot struct {
	UserID          string             `json:"user_id"`
	Source          Source             `json:"source"`
	Confidence      float64            `json:"confidence"`
	Axes            map[string]float64 `json:"axes"`
	UpdatedAtUnixMs int64              `json:"updated_at_unix_ms"`
}

// Validate checks user id, source, confidence and every axis.
func (s *Snapshot) Validate() error {
	if s.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if len(s.UserID) > MaxUserIDLength {
		return &ValidationError{Field: "user_id", Message: fmt.Sprintf("exceeds %d bytes", MaxUserIDLength)}
	}
	if !s.Source.valid() {
		return &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", s.Source)}
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return &ValidationError{Field: "confidence", Message: fmt.Sprintf("%v is outside [0, 1]", s.Confidence)}
	}
	for name, v := range s.Axes {
		if !IsKnownAxis(name) {
			return &ValidationError{Field: "axes." + name, Message: "unknown axis"}
		}
		if math.IsNaN(v) || v < AxisMin || v > AxisMax {
			return &ValidationError{
				Field:   "axes." + name,
				Message: fmt.Sprintf("%v is outside [%v, %v]", v, AxisMin, AxisMax),
			}
		}
	}
	return nil
}

// Clone returns a deep copy so stored snapshots cannot be mutated by callers.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Axes = make(map[string]float64, len(s.Axes))
	for k, v := range s.Axes {
		c.Axes[k] = v
	}
	return &c
}

// UpdatedAt returns the build timestamp as a time.Time.
func (s *Snapshot) UpdatedAt() time.Time {
	return time.UnixMilli(s.UpdatedAtUnixMs)
}

// Builder assembles a Snapshot. The zero value is not usable; call NewBuilder.
type Builder struct {
	snap Snapshot
	now  func() time.Time
}

// NewBuilder returns a builder with self-report source and full confidence.
func NewBuilder() *Builder {
	return &Builder{
		snap: Snapshot{
			Source:     SourceSelfReport,
			Confidence: 1.0,
			Axes:       make(map[string]float64),
		},
		now: time.Now,
	}
}

// UserID sets the owning user.
func (b *Builder) UserID(id string) *Builder {
	b.snap.UserID = id
	return b
}

// Source sets the provenance.
func (b *Builder) Source(src Source) *Builder {
	b.snap.Source = src
	return b
}

// Confidence sets the overall confidence.
func (b *Builder) Confidence(c float64) *Builder {
	b.snap.Confidence = c
	return b
}

// Axis sets a single axis value, replacing any previous value.
func (b *Builder) Axis(name string, value float64) *Builder {
	b.snap.Axes[name] = value
	return b
}

// Axes sets every axis in values.
func (b *Builder) Axes(values map[string]float64) *Builder {
	for k, v := range values {
		b.snap.Axes[k] = v
	}
	return b
}

// Clock overrides the timestamp source. Used by tests and backends that
// rebuild snapshots with a known time.
func (b *Builder) Clock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build stamps the snapshot and validates it. An invalid snapshot is never returned.
func (b *Builder) Build() (*Snapshot, error) {
	snap := b.snap
	snap.Axes = make(map[string]float64, len(b.snap.Axes))
	for k, v := range b.snap.Axes {
		snap.Axes[k] = v
	}
	snap.UpdatedAtUnixMs = b.now().UnixMilli()
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Restore rebuilds a snapshot read back from durable storage. It goes
// through the builder so a corrupted row can never surface unvalidated.
func Restore(userID string, source Source, confidence float64, axes map[string]float64, updatedAtUnixMs int64) (*Snapshot, error) {
	return NewBuilder().
		UserID(userID).
		Source(source).
		Confidence(confidence).
		Axes(axes).
		Clock(func() time.Time { return time.UnixMilli(updatedAtUnixMs) }).
		Build()
}

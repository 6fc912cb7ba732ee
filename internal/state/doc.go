// Package state defines the behavioral state model tracked per user.
//
// # Axes
//
// A user's state is a set of named numeric axes drawn from a fixed
// canonical registry (see CanonicalAxes). Every axis value lies in [0, 1].
// Axes are grouped into categories: cognitive, emotional, social,
// preferences, control and safety.
//
// # Snapshots
//
// A Snapshot is one validated record of a user's axis values at a point in
// time. Snapshots are only produced by Builder.Build, which stamps the
// update time and validates the result:
//
//	snap, err := state.NewBuilder().
//	    UserID("user_123").
//	    Source(state.SourceSelfReport).
//	    Axis("warmth", 0.7).
//	    Build()
//
// Build returns a *ValidationError when the user id is empty, an axis is
// not canonical, or any value is out of range. Stores hand out clones, so
// snapshots are effectively immutable once stored.
package state

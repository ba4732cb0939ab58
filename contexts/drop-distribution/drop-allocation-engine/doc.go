// Package dropallocationengine contains the drop allocation engine: eligibility,
// the once-per-day limit, atomic item reservation, and the allocation audit trail.
//
// The module keeps domain/application logic decoupled from runtime/platform
// concerns through ports and adapter composition.
package dropallocationengine

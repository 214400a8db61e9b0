package util

import "github.com/oklog/ulid/v2"

// New generates a new ULID string. Ids sort by creation time, which the journal
// relies on for ordering runs.
func New() string {
	return ulid.Make().String()
}

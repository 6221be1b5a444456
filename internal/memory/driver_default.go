//go:build !(sqlite_vec && cgo)

package memory

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go SQLite driver. Builds without cgo use
// this path; similarity is computed in process over stored blobs.
const driverName = "sqlite"

// Package schemas ships the JSON Schemas for the files this module reads and writes.
package schemas

import _ "embed"

// Snapshot is the schema of the snapshot interchange file.
//
//go:embed snapshot.schema.json
var Snapshot []byte

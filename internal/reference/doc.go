// Package reference loads the known-service reference database and
// resolves cookie names against it.
//
// The database is an opaque, versioned lookup table keyed by component id
// and cookie name pattern. A default copy is embedded in the binary; a
// newer one can be supplied as a YAML or JSON file.
package reference

// Package export projects an audit into the canonical audit document, the
// stable JSON schema shared with remote scanners.
//
// Export is pure: every field is derived from the static result and the
// live result it is given. Fields a passive scan cannot observe, such as
// cookie values, request counts and redirect chains, are present with
// empty values so that consumers can rely on the shape.
package export

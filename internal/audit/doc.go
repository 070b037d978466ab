// Package audit owns the lifecycle of an audit run: it assigns the run id,
// executes the pipeline, caches the result and clears everything a run
// leaves behind.
//
// A cached result is reused while it is younger than the cache TTL and the
// content hash of the active-component list still matches the hash the run
// was made with. Installing or removing a component therefore invalidates
// the cache immediately.
package audit

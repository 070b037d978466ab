// Package orchestrator drives the live scan.
//
// A bounded pool of slots visits the page list. Every page moves through
// Queued, Loading and then Completed or TimedOut. The page collector of a
// slot signals completion by sending a Message on the reply channel that
// belongs to that one page; the channel is dropped as soon as the page
// completes or its timer fires. When the first pass leaves some, but
// fewer than half, of the pages timed out, those pages get exactly one
// more try with a single slot and a longer timeout.
//
// The event loop runs in the goroutine that called Run and owns the queue
// and slot bookkeeping; collectors never touch it.
package orchestrator

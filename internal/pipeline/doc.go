// Package pipeline provides a framework for executing audit steps in sequence.
//
// An audit runs through explicit stages: page selection, static analysis,
// the live scan and the merge. Each stage is a Step that receives the
// current model.AuditResult and can modify it. DefaultPipeline wires the
// stages in order.
//
// BatchProcessor provides bounded, order-preserving parallelism on top of
// errgroup and is used wherever many independent items are processed.
package pipeline

// Package static inspects an installed site without any network activity.
//
// RunStatic walks the active components, the stored options, the enqueued
// scripts and the theme templates, and reports every piece of tracking
// evidence as a model.StaticFinding variant. The pass runs under a wall
// clock budget and a per-component file budget. Exceeding either marks the
// result partial; findings collected up to that point are always kept.
package static

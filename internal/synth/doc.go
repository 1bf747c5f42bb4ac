// Package synth implements the long-form synthesis pipeline: it splits
// source text into bounded chunks, dispatches chunk requests to a
// Synthesizer under bounded concurrency with retry and backoff, keeps
// results in strict chunk order regardless of completion order, merges
// the chunk audio into a single uniformly encoded file, and records a
// reproducibility sidecar.
//
// The package never reads ambient process state; every tunable arrives
// through Config and every external collaborator through an interface.
package synth

// Package services implements the driving port interfaces.
//
// The Pipeline drives one cycle: resume a pending checkpoint, collect every
// owner through the Collector, assemble and checkpoint the batch, send it,
// and promote its documents once the endpoint confirmed it. The Classifier
// owns every ledger access. The Scheduler repeats runs and checkpoint
// sweeps in the background.
package services

// Package domain defines the core business entities for deltasync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Owner: The business entity documents belong to
//   - DocumentRecord: A fetched document and its physical placement
//   - LedgerEntry: A document id already known for an owner
//   - Batch: One upload attempt's artifacts and metadata
//   - CheckpointInfo: A persisted, not yet confirmed batch
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Ledger: Known document ids per owner (memory, SQLite or DynamoDB)
//   - PartitionStore: Delta/base placement of downloaded documents
//   - BatchUploader: Delivery of batches to the ingestion endpoint
//   - CheckpointStore: Persistence of unconfirmed batches
//   - DocumentSource: Owners and their documents
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Notifier: Failure notifications. Without it, failures are only logged.
//   - SpreadsheetBuilder: Batch summary attachment. Without it, batches carry none.
//   - RunStore: Run history. Without it, runs are not recorded.
//   - SchedulerStore: Only needed by the background scheduler.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven

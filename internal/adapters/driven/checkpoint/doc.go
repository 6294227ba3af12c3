// Package checkpoint persists unsent batches as versioned, compressed files
// so that a failed delivery can be retried on the next run.
//
// A checkpoint file is a CBOR envelope carrying a magic string, a format
// version, the batch id, the creation time and a blake3 digest of the
// zstd-compressed payload. The payload is the deterministic CBOR encoding
// of the batch.
package checkpoint

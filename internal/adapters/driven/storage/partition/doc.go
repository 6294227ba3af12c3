// Package partition keeps downloaded documents in two local areas.
//
// Layout:
//
//	<base_dir>/<owner>/<id><ext>
//	<delta_dir>/<owner>/<id><ext>
//	<delta_dir>/<owner>/<id><ext>.marker
//
// Documents in the delta area have not yet been confirmed by a completed
// cycle; each carries a JSON marker recording its owner, id, source date
// and placement time. A document lives in at most one area at a time.
//
// After every reconciliation or promotion pass, empty directories below
// the delta root are removed bottom-up. The delta root and the base area
// are never pruned.
package partition

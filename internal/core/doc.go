// Package core provides the data-quality pipeline for sales transaction files.
//
// This package holds every correctness rule of the loader, independent of the
// file reader, the database and any transport. It can be used by the CLI, the
// HTTP server, the scheduler or tests without modification.
//
// # Stages
//
// A run moves one bounded, in-memory table through four stages:
//
//  1. Structural check: [ValidateStructure] verifies the column set and row
//     count against the [Contract]. Any failure halts the run with a
//     [StructuralError] before a single row is touched.
//  2. Transform: [Transformer] maps every [RawRecord] to a typed
//     [TransformedRecord]. It never fails on bad data; unparseable values
//     become explicit invalid markers.
//  3. Row validation: [RowValidator] evaluates every [RowRule] and partitions
//     the rows into clean records and [Rejection]s, collecting all violated
//     rules per row.
//  4. Persist: a [Persister] upserts clean records by transaction id and
//     appends rejections to the dead-letter log.
//
// [Pipeline] sequences the stages and produces a [RunSummary].
//
// # Contract
//
// The default contract mirrors the sales export layout:
//
//	c := core.DefaultContract()
//	c.DateFormats = []string{"%Y-%m-%d", "%d/%m/%Y"}
//	if err := c.Validate(); err != nil { ... }
//
// Contracts can be overridden from YAML with [LoadContract].
//
// # Error Handling
//
// Only two error kinds stop a run once the input is read: [StructuralError]
// and [PersistenceError]. Row-level problems never fail the run; they are
// routed to the dead-letter store with every reason attached. Input errors
// from the reader are [InputError]s of kind [InputUnavailable] (retry later)
// or [InputCorrupt] (escalate).
//
// Technical errors are mapped to user-facing messages with [MapError].
package core

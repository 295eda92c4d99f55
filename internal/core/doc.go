// Package core holds the question import pipeline, independent of HTTP,
// storage or mail.
//
// # Pipeline
//
// An upload moves through these stages:
//
//  1. [DetectKind] and [CheckSize] accept or reject the file.
//  2. [Decoder.Decode] turns bytes into a [Table] of [RawRecord] values.
//     Delimited text has its encoding and delimiter detected; spreadsheets
//     keep typed cells (numbers and dates).
//  3. [NewBatch] validates every record with a [RowValidator].
//  4. The batch is held in a [StagingStore] under the admin's session until
//     it is committed or discarded.
//  5. [Corrections.Apply] merges human edits into a copy of the batch.
//  6. [Committer.Commit] re-validates and persists row by row. Rows that fail
//     are returned as [UnresolvedRow] values and can be staged again with
//     [ImportOutcome.Restage].
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Each
// category has a code for support reference:
//
//   - DB001-DB007: database errors (duplicates, constraints, connections)
//   - VAL001-VAL002: row validation and unknown departments
//   - FILE001-FILE005: file errors (size, format, encoding)
//   - UPL002-UPL008: import flow errors (busy, cancelled, stale batch)
//   - MAIL001-MAIL003: notification delivery
//   - RATE001: request rate limit
package core

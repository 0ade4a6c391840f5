// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed identifiers for the Matrix
// entities the sync library tracks: rooms, users, events, and event
// types.
//
// Identifiers are validated at the boundary (JSON decoding, CLI
// flags, persisted snapshots) and are immutable afterwards. The zero
// value of every struct-wrapped type is "unset" and reports IsZero.
//
// JSON and CBOR marshaling use the canonical Matrix string form via
// encoding.TextMarshaler, so the types can be used directly as struct
// fields and map keys in wire structures.
package ref

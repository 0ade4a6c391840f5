// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the binary encodings used for data chatsync
// keeps on disk.
//
// The Matrix wire format is JSON and stays JSON. Anything chatsync
// persists for itself (room snapshots, cached state) is CBOR with Core
// Deterministic Encoding, so the same snapshot always yields the same
// bytes, optionally compressed into a self-describing blob:
//
//	data, err := codec.Marshal(snapshot)
//	blob, err := codec.Compress(data, codec.CompressionZstd)
//	...
//	data, err = codec.Decompress(blob)
//	err = codec.Unmarshal(data, &snapshot)
//
// Types with a `cbor` struct tag are only ever stored. Types with a
// `json` tag (messaging.Event and friends) are shared with the wire
// format; fxamacker/cbor falls back to json tags when cbor tags are
// absent, so one tag controls both.
package codec

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O and network error helpers for the
// Matrix transport.
//
// ReadResponse bounds response body reads at MaxResponseSize. It is
// for JSON API responses (sync batches, send acknowledgements,
// pagination chunks), not media downloads.
//
// IsConnectivityError classifies transport failures that mean the
// homeserver could not be reached at all, as opposed to the server
// answering with an error.
package netutil

import (
	"errors"
	"io"
)

// MaxResponseSize bounds JSON response reads. An initial sync for a
// large account can reach tens of megabytes.
const MaxResponseSize int64 = 256 << 20

// ErrResponseTooLarge is returned by ReadResponse when a body exceeds
// MaxResponseSize.
var ErrResponseTooLarge = errors.New("netutil: response body exceeds size limit")

// ReadResponse reads a response body. A body longer than
// MaxResponseSize fails with ErrResponseTooLarge rather than being
// silently cut short.
func ReadResponse(body io.Reader) ([]byte, error) {
	return readLimited(body, MaxResponseSize)
}

func readLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"net"
	"syscall"
)

// IsConnectivityError reports whether err means the remote host could
// not be reached: DNS failure, refused or reset connections, and
// unreachable networks or hosts. A context cancellation or deadline is
// not a connectivity error; neither is any HTTP-level response.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENETUNREACH,
			syscall.EHOSTUNREACH, syscall.ENETDOWN, syscall.EPIPE:
			return true
		}
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return errors.Is(err, net.ErrClosed)
}

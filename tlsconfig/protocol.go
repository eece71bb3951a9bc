// File: tlsconfig/protocol.go
// Package tlsconfig builds the server-role TLSContext of spec.md §3/§4.1.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stdlib justification (see DESIGN.md): no TLS/SSL library appears anywhere
// in the retrieval pack, so crypto/tls is the only idiomatic choice — it is
// itself "the ecosystem way" Go reaches for TLS.
package tlsconfig

import (
	"crypto/tls"
	"errors"
	"strings"
)

// Protocol is a bitmask of the SSLProtocol tokens spec.md §4.1 step 7 and
// §6 recognize: {SSLv2, SSLv3, TLSv1, TLSv1.1, TLSv1.2, all}.
type Protocol uint8

const (
	ProtoSSLv2 Protocol = 1 << iota
	ProtoSSLv3
	ProtoTLSv1
	ProtoTLSv1_1
	ProtoTLSv1_2

	ProtoAll = ProtoSSLv2 | ProtoSSLv3 | ProtoTLSv1 | ProtoTLSv1_1 | ProtoTLSv1_2
)

// ErrInvalidSSLProtocol is returned for an unrecognized '+'-joined token
// (spec.md §8 scenario 6: "SSLv3+bogus" -> init fails).
var ErrInvalidSSLProtocol = errors.New("tlsconfig: invalid SSL protocol")

// ParseProtocols parses a '+'-joined, case-insensitive, whitespace-tolerant
// token list into a Protocol bitmask (spec.md §8: "whitespace around '+'
// tolerated; unknown token rejects").
func ParseProtocols(spec string) (Protocol, error) {
	var mask Protocol
	for _, tok := range strings.Split(spec, "+") {
		tok = strings.TrimSpace(tok)
		switch strings.ToLower(tok) {
		case "sslv2":
			mask |= ProtoSSLv2
		case "sslv3":
			mask |= ProtoSSLv3
		case "tlsv1":
			mask |= ProtoTLSv1
		case "tlsv1.1":
			mask |= ProtoTLSv1_1
		case "tlsv1.2":
			mask |= ProtoTLSv1_2
		case "all":
			mask |= ProtoAll
		default:
			return 0, ErrInvalidSSLProtocol
		}
	}
	return mask, nil
}

// versionRange reports the [min,max] crypto/tls version constants implied
// by mask. SSLv2/SSLv3 are recognized tokens (so requesting them never
// fails init) but crypto/tls has never supported either protocol — the
// runtime silently floors effective negotiation at TLS 1.0, mirroring the
// "runtime doesn't support this option, log a warning" pattern spec.md
// §4.1 step 7 uses for honor-cipher-order/disable-compression. The token
// set spec.md defines stops at TLSv1.2, so max is capped there even though
// the Go runtime itself can negotiate TLS 1.3.
func (m Protocol) versionRange() (min, max uint16, unsupportedRequested bool) {
	if m == 0 {
		return tls.VersionTLS10, tls.VersionTLS12, false
	}
	unsupportedRequested = m&(ProtoSSLv2|ProtoSSLv3) != 0

	min = 0
	if m&ProtoTLSv1 != 0 && (min == 0 || tls.VersionTLS10 < min) {
		min = tls.VersionTLS10
	}
	if m&ProtoTLSv1_1 != 0 && (min == 0 || tls.VersionTLS11 < min) {
		min = tls.VersionTLS11
	}
	if m&ProtoTLSv1_2 != 0 && (min == 0 || tls.VersionTLS12 < min) {
		min = tls.VersionTLS12
	}
	if min == 0 {
		// Only SSLv2/SSLv3 requested: floor at the oldest the runtime speaks.
		min = tls.VersionTLS10
	}

	max = tls.VersionTLS10
	if m&ProtoTLSv1 != 0 {
		max = tls.VersionTLS10
	}
	if m&ProtoTLSv1_1 != 0 {
		max = tls.VersionTLS11
	}
	if m&ProtoTLSv1_2 != 0 {
		max = tls.VersionTLS12
	}
	if max < min {
		max = min
	}
	return min, max, unsupportedRequested
}

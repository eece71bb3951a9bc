// File: tlsconfig/tlsconfig.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// VerifyMode mirrors spec.md §6's SSLVerifyClient values.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifyOptional
	VerifyRequire
	VerifyOptionalNoCA
)

// Spec describes a server-role TLSContext exactly as spec.md §4.1 step 7
// lists it: protocol tokens, cipher suite, certificate material, CA +
// revocation, client-verify mode and depth, and the two best-effort
// options (honor-cipher-order, disable-compression).
type Spec struct {
	Protocols string // '+'-joined tokens, see protocol.go

	CipherSuiteNames []string // names from crypto/tls.CipherSuiteName(); empty = runtime default

	CertificateFile string
	KeyFile         string
	KeyPassword     string // non-empty => KeyFile is a legacy encrypted PEM key
	ChainFile       string // optional intermediate chain, appended after the leaf

	CACertificateFile  string
	CARevocationFile   string // optional CRL, in DER or PEM
	VerifyClient       VerifyMode
	VerifyDepth        int // 0 = unlimited

	HonorCipherOrder   bool
	DisableCompression bool
}

// Context wraps the built *tls.Config. It is immutable after Build, per
// spec.md §5 "TLSContext is immutable after init".
type Context struct {
	config *tls.Config
}

// TLSConfig returns the immutable *tls.Config for use by a TCP listener's
// per-connection handshake.
func (c *Context) TLSConfig() *tls.Config { return c.config }

// Build constructs a Context from Spec, logging at WARN whenever an option
// is silently downgraded because the runtime doesn't support it — exactly
// the "apply options... if the TLS runtime supports them, else log a
// warning" rule of spec.md §4.1 step 7.
func Build(spec Spec, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}

	mask, err := ParseProtocols(spec.Protocols)
	if err != nil {
		return nil, err
	}
	minV, maxV, unsupportedLegacy := mask.versionRange()
	if unsupportedLegacy {
		log.Warn("SSL protocol token requests SSLv2/SSLv3; runtime has never supported either, flooring at TLS 1.0")
	}

	cert, err := loadCertificate(spec)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: load certificate: %w", err)
	}

	cfg := &tls.Config{
		MinVersion:   minV,
		MaxVersion:   maxV,
		Certificates: []tls.Certificate{cert},
	}

	if len(spec.CipherSuiteNames) > 0 {
		ids, unknown := resolveCipherSuites(spec.CipherSuiteNames)
		cfg.CipherSuites = ids
		for _, name := range unknown {
			log.Warn("unknown cipher suite name ignored", zap.String("cipher", name))
		}
	}

	// Go's TLS stack has enforced the server's cipher-suite order since
	// Go 1.17 and never exposed a switch to disable that — there is
	// nothing to "honor" toggle; log the fallback instead of pretending to
	// apply it.
	if spec.HonorCipherOrder {
		log.Warn("SSLHonorCipherOrder requested; runtime always enforces server cipher order and has no configurable switch")
	}
	// Go's crypto/tls has never implemented TLS-level record compression
	// (removed industry-wide after CRIME); nothing to disable.
	if spec.DisableCompression {
		log.Warn("SSLDisableCompression requested; runtime never implements TLS compression, so there is nothing to disable")
	}

	if spec.CACertificateFile != "" {
		pool, err := loadCAPool(spec.CACertificateFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: load CA: %w", err)
		}
		cfg.ClientCAs = pool
	}

	var revoked map[string]struct{}
	if spec.CARevocationFile != "" {
		revoked, err = loadRevocationList(spec.CARevocationFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: load CRL: %w", err)
		}
	}

	cfg.ClientAuth = clientAuthType(spec.VerifyClient)
	if spec.VerifyDepth > 0 || len(revoked) > 0 {
		cfg.VerifyPeerCertificate = verifyCallback(spec.VerifyDepth, revoked)
	}

	return &Context{config: cfg}, nil
}

func clientAuthType(m VerifyMode) tls.ClientAuthType {
	switch m {
	case VerifyOptional:
		return tls.VerifyClientCertIfGiven
	case VerifyRequire:
		return tls.RequireAndVerifyClientCert
	case VerifyOptionalNoCA:
		// Request a cert but never have the runtime validate it against
		// ClientCAs. verifiedChains is then empty, so verifyCallback (if
		// present) enforces neither depth nor CRL in this mode.
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}

func verifyCallback(maxDepth int, revoked map[string]struct{}) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		for _, chain := range verifiedChains {
			if maxDepth > 0 && len(chain) > maxDepth {
				return fmt.Errorf("tlsconfig: certificate chain depth %d exceeds SSLVerifyDepth %d", len(chain), maxDepth)
			}
			for _, cert := range chain {
				if _, bad := revoked[cert.SerialNumber.String()]; bad {
					return fmt.Errorf("tlsconfig: certificate serial %s is revoked", cert.SerialNumber.String())
				}
			}
		}
		return nil
	}
}

func resolveCipherSuites(names []string) (ids []uint16, unknown []string) {
	known := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		known[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		known[cs.Name] = cs.ID
	}
	for _, n := range names {
		if id, ok := known[n]; ok {
			ids = append(ids, id)
		} else {
			unknown = append(unknown, n)
		}
	}
	return ids, unknown
}

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

func loadRevocationList(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	crl, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(crl.RevokedCertificateEntries))
	for _, entry := range crl.RevokedCertificateEntries {
		out[entry.SerialNumber.String()] = struct{}{}
	}
	return out, nil
}

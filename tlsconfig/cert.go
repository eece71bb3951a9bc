// File: tlsconfig/cert.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// loadCertificate builds a tls.Certificate from Spec's CertificateFile/
// KeyFile/KeyPassword/ChainFile (spec.md §6: SSLCertificateFile/KeyFile/
// ChainFile/Password).
func loadCertificate(spec Spec) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(spec.CertificateFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := os.ReadFile(spec.KeyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	if spec.KeyPassword != "" {
		keyPEM, err = decryptLegacyPEMKey(keyPEM, spec.KeyPassword)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("decrypt private key: %w", err)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, err
	}

	if spec.ChainFile != "" {
		chainPEM, err := os.ReadFile(spec.ChainFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("read chain file: %w", err)
		}
		rest := chainPEM
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type == "CERTIFICATE" {
				cert.Certificate = append(cert.Certificate, block.Bytes)
			}
		}
	}
	return cert, nil
}

// decryptLegacyPEMKey decrypts an RFC 1423 "Proc-Type: 4,ENCRYPTED"
// PEM-encoded private key. This is the format Apache/OpenSSL-era
// SSLCertificateKeyFile + SSLPassword configurations produce; crypto/x509
// marks the helpers deprecated (the KDF is weak by modern standards) but
// keeps them for exactly this legacy-interop case, and no third-party
// alternative appears in the retrieval pack (see DESIGN.md).
func decryptLegacyPEMKey(keyPEM []byte, password string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in key file")
	}
	if !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy interop, see doc comment
		return keyPEM, nil
	}
	der, err := x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck // legacy interop
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

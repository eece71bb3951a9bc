package tlsconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProtocols(t *testing.T) {
	cases := []struct {
		name    string
		spec    string
		want    Protocol
		wantErr bool
	}{
		{"single", "TLSv1.2", ProtoTLSv1_2, false},
		{"combo", "TLSv1+TLSv1.1", ProtoTLSv1 | ProtoTLSv1_1, false},
		{"case insensitive", "tlsv1.2+sslv3", ProtoTLSv1_2 | ProtoSSLv3, false},
		{"whitespace tolerated", " TLSv1 + TLSv1.1 ", ProtoTLSv1 | ProtoTLSv1_1, false},
		{"all token", "all", ProtoAll, false},
		{"unknown token rejects", "SSLv3+bogus", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseProtocols(tc.spec)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidSSLProtocol)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestVersionRange_LegacyTokensFloorAtTLS10(t *testing.T) {
	mask, err := ParseProtocols("SSLv2+SSLv3")
	require.NoError(t, err)
	min, _, unsupported := mask.versionRange()
	require.True(t, unsupported)
	require.Equal(t, uint16(0x0301), min) // tls.VersionTLS10
}

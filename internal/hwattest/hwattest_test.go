package hwattest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopVerifierAcceptsPlatformNone(t *testing.T) {
	var v NoopVerifier
	err := v.Verify(Quote{Platform: PlatformNone})
	require.NoError(t, err)
}

func TestNoopVerifierAcceptsQuoteWithReportData(t *testing.T) {
	var v NoopVerifier
	err := v.Verify(Quote{Platform: PlatformSGXDCAP, ReportData: []byte("nonce-bytes")})
	require.NoError(t, err)
}

func TestNoopVerifierRejectsMissingReportData(t *testing.T) {
	var v NoopVerifier
	err := v.Verify(Quote{Platform: PlatformSEVSNP})
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}

// Package hwattest optionally enriches a software evidence claim with a
// hardware attestation quote (SGX DCAP, SEV-SNP, or Nitro Enclaves), per
// SPEC_FULL.md §4's "Optional hardware evidence" supplement. It is scoped
// far below the teacher's full enclave runtime subsystem: this package only
// carries a quote alongside the existing Ed25519 evidence claims, it does
// not replace them, and its absence never blocks the core protocol in
// spec.md.
package hwattest

import "cosmossdk.io/errors"

var ErrUnsupportedPlatform = errors.Register("hwattest", 1, "unsupported hardware attestation platform")

// Platform names a hardware root of trust a quote may have been produced
// under.
type Platform string

const (
	PlatformSGXDCAP Platform = "sgx-dcap"
	PlatformSEVSNP   Platform = "sev-snp"
	PlatformNitro    Platform = "nitro"
	PlatformNone     Platform = "none"
)

// Quote is an opaque, platform-specific attestation quote bound to a
// report-data value — here, the same nonce the Ed25519 claims sign over, so
// a hardware quote is bound to the identical freshness anchor as the
// software evidence it accompanies.
type Quote struct {
	Platform   Platform
	ReportData []byte
	Raw        []byte
}

// Verifier validates a Quote against a platform-specific trust chain. Real
// verification (DCAP collateral checks, SEV-SNP VCEK chains, Nitro's
// attestation document COSE signature) is deployment-specific and out of
// scope here; this interface is the seam a deployment plugs one into.
type Verifier interface {
	Verify(q Quote) error
}

// NoopVerifier accepts a PlatformNone quote, and otherwise any quote that
// carries non-empty report data, without checking a hardware trust chain or
// comparing the report data to anything (internal/verifier sets it to the
// nonce it has already validated before calling Verify). It exists so the core
// protocol can be exercised in tests and in deployments that have not
// enabled hardware attestation, without special-casing its absence
// elsewhere in internal/verifier.
type NoopVerifier struct{}

func (NoopVerifier) Verify(q Quote) error {
	if q.Platform == PlatformNone {
		return nil
	}
	if len(q.ReportData) == 0 {
		return ErrUnsupportedPlatform.Wrap("quote carries no report data")
	}
	return nil
}

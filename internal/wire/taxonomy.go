package wire

// Error kind strings carried in an ErrorReply envelope, per spec.md §7's
// taxonomy. The Client treats any non-"response" reply as request failure
// and never receives more detail than the kind string itself.
const (
	KindProtocol     = "ProtocolError"
	KindNonce        = "NonceError"
	KindEvidence     = "EvidenceError"
	KindAttestation  = "AttestationError"
	KindAuth         = "AuthError"
	KindParameter    = "ParameterError"
	KindUnauthorized = "UnauthorizedError"
	KindStore        = "StoreError"
)

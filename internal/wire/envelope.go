// Package wire implements the line-delimited JSON envelopes exchanged between
// the Client, the Personal Intermediary, the Data-Access Proxy and the
// Verifier over a mutually-authenticated TLS channel.
package wire

import "encoding/json"

// Route names recognized on the wire.
const (
	RouteNonce       = "nonce"
	RouteEvidence    = "evidence"
	RouteAttestation = "attestation"
)

// Envelope is the superset of fields used across every route in §6 of the
// protocol spec. Components populate only the fields relevant to the route
// they are sending; unused fields are omitted by `json:",omitempty"`.
type Envelope struct {
	Verb  string `json:"verb,omitempty"`
	Route string `json:"route,omitempty"`

	// Nonce request / evidence request / nonce response (`{nonce:<b64>}`
	// serves both the request parameter and the response value).
	Nonce     string `json:"nonce,omitempty"`
	QueryName string `json:"query_name,omitempty"`

	// Evidence response.
	SourceCodeClaim    string `json:"source_code_claim,omitempty"`
	LoadedPipelineClaim string `json:"loaded_pipeline_claim,omitempty"`
	ReceivedNonce      string `json:"received_nonce,omitempty"`
	RequestedNonce     string `json:"requested_nonce,omitempty"`

	// Attestation response.
	Attestation string `json:"attestation,omitempty"`

	// Optional hardware attestation quote, carried alongside the Ed25519
	// claims on an evidence response and the attestation request built from
	// it (SPEC_FULL.md §4 "Optional hardware evidence"). Raw quote bytes are
	// base64-encoded; empty HWPlatform means no hardware evidence accompanies
	// this exchange.
	HWPlatform string `json:"hw_platform,omitempty"`
	HWQuote    string `json:"hw_quote,omitempty"`

	// Query request.
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Params   map[string]any `json:"params,omitempty"`

	// Query response.
	Response string `json:"response,omitempty"`

	// Error reply, every route.
	Error string `json:"error,omitempty"`

	// Close handshake.
	Close string `json:"close,omitempty"`
}

// NonceRequest builds a `{verb:"GET", route:"nonce"}` envelope.
func NonceRequest() Envelope {
	return Envelope{Verb: "GET", Route: RouteNonce}
}

// EvidenceRequest builds a `{verb:"GET", route:"evidence", nonce, query_name}` envelope.
func EvidenceRequest(nonce, queryName string) Envelope {
	return Envelope{Verb: "GET", Route: RouteEvidence, Nonce: nonce, QueryName: queryName}
}

// AttestationRequest builds the peer->Verifier attestation request envelope.
// hwPlatform/hwQuote are empty when the peer carries no hardware evidence.
func AttestationRequest(sourceClaim, pipelineClaim, nonce, queryName, hwPlatform, hwQuote string) Envelope {
	return Envelope{
		Verb:                "GET",
		Route:               RouteAttestation,
		SourceCodeClaim:     sourceClaim,
		LoadedPipelineClaim: pipelineClaim,
		Nonce:               nonce,
		QueryName:           queryName,
		HWPlatform:          hwPlatform,
		HWQuote:             hwQuote,
	}
}

// QueryRequest builds a `{verb:"GET", route:<name>, username, password, params}` envelope.
func QueryRequest(route, username, password string, params map[string]any) Envelope {
	return Envelope{Verb: "GET", Route: route, Username: username, Password: password, Params: params}
}

// ErrorReply builds a `{error:<kind>}` envelope.
func ErrorReply(kind string) Envelope {
	return Envelope{Error: kind}
}

// CloseMessage builds the `{close:"close"}` envelope.
func CloseMessage() Envelope {
	return Envelope{Close: "close"}
}

// IsClose reports whether the envelope is a close handshake message.
func (e Envelope) IsClose() bool {
	return e.Close == "close"
}

// IsError reports whether the envelope carries an error reply.
func (e Envelope) IsError() bool {
	return e.Error != ""
}

// MarshalCompact renders the envelope as compact, newline-terminated JSON
// suitable for a single wire frame.
func (e Envelope) MarshalCompact() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

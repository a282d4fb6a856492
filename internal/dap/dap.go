// Package dap implements spec.md §4.2: the Data-Access Proxy that proves
// its own identity and template, authenticates the caller, binds and
// executes an approved query, and signs the result — triggering mutual
// attestation of the caller when the release policy demands it.
package dap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/virtengine/vericare/internal/audit"
	"github.com/virtengine/vericare/internal/auth"
	"github.com/virtengine/vericare/internal/buildid"
	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/metrics"
	"github.com/virtengine/vericare/internal/noncestore"
	"github.com/virtengine/vericare/internal/pipeline"
	"github.com/virtengine/vericare/internal/signing"
	"github.com/virtengine/vericare/internal/store"
	"github.com/virtengine/vericare/internal/template"
	"github.com/virtengine/vericare/internal/wire"
)

const identityDAP = "dap"

// DAP is the Data-Access Proxy runtime, holding its signing identity, the
// approved-pipeline view it shares with the Verifier, the document store,
// and the authenticator for inbound users.
type DAP struct {
	signer         *signing.Signer
	sourceImage    buildid.Image
	pipelines      *pipeline.Registry
	routes         Routes
	authn          *auth.Authenticator
	docs           store.Store
	verifierClient VerifierClient
	nonces         noncestore.Store
	auditLog       audit.Logger
	hwQuote        hwattest.Quote
	log            zerolog.Logger
}

// New builds a DAP runtime. hwQuote is the hardware attestation quote
// template this DAP should attach to its evidence responses, with
// ReportData filled in per-request from the fresh nonce; pass the zero
// value (hwattest.PlatformNone) to run without hardware evidence.
func New(signer *signing.Signer, sourceImage buildid.Image, pipelines *pipeline.Registry, routes Routes, authn *auth.Authenticator, docs store.Store, vc VerifierClient, nonces noncestore.Store, auditLog audit.Logger, hwQuote hwattest.Quote, log zerolog.Logger) *DAP {
	return &DAP{
		signer:         signer,
		sourceImage:    sourceImage,
		pipelines:      pipelines,
		routes:         routes,
		authn:          authn,
		docs:           docs,
		verifierClient: vc,
		nonces:         nonces,
		auditLog:       auditLog,
		hwQuote:        hwQuote,
		log:            log.With().Str("component", "dap").Logger(),
	}
}

// HandleEvidenceRequest implements spec.md §4.2's
// handle_evidence_request(nonce, pipeline_name) -> {source_claim,
// pipeline_claim, fresh_nonce}, plus the optional hardware quote supplement
// from SPEC_FULL.md §4, bound to the same nonce the Ed25519 claims sign over.
func (d *DAP) HandleEvidenceRequest(ctx context.Context, nonce []byte, pipelineName string) (sourceClaim, pipelineClaim string, freshNonce []byte, quote hwattest.Quote, err error) {
	approved, err := d.pipelines.Get(pipelineName)
	if err != nil {
		return "", "", nil, hwattest.Quote{}, err
	}
	canonical, err := approved.Canonical()
	if err != nil {
		return "", "", nil, hwattest.Quote{}, err
	}

	sourceClaim = d.signer.SignClaim(d.sourceImage, nonce)
	pipelineClaim = d.signer.SignClaim([]byte(canonical), nonce)

	freshNonce, err = d.nonces.Issue(ctx)
	if err != nil {
		return "", "", nil, hwattest.Quote{}, err
	}
	metrics.NoncesIssued.WithLabelValues("dap").Inc()

	quote = d.hwQuote
	quote.ReportData = nonce
	return sourceClaim, pipelineClaim, freshNonce, quote, nil
}

// queryState carries the mutable state of one in-flight query across the
// per-request state machine (spec.md §4.2 "State machine").
type queryState struct {
	route        Route
	params       map[string]any
	userID       bson.ObjectID
	peerAttested bool
}

// HandleQuery implements spec.md §4.2's handle_query operation. Peer
// evidence carried on the inbound envelope (PI flow, step 8) is attested
// through the VerifierClient; requestCallerEvidence is invoked only if the release policy
// yields the "attestation required" sentinel and no prior peer attestation
// already covers this caller — it drives the reverse evidence/attestation
// exchange over the same connection, and a plain Client (no attestable
// identity) is expected to fail it (spec.md §8 scenario 3).
func (d *DAP) HandleQuery(ctx context.Context, env wire.Envelope, requestCallerEvidence func(ctx context.Context) (peer string, attested *signing.SignedAttestation, err error)) wire.Envelope {
	start := time.Now()
	defer func() {
		metrics.QueryLatency.WithLabelValues(env.Route).Observe(time.Since(start).Seconds())
	}()

	state := StateAwaitQuery

	route, ok := d.routes.Lookup(env.Route)
	if !ok {
		return wire.ErrorReply(wire.KindProtocol)
	}

	qs := &queryState{route: route}

	// Step 2: if the inbound envelope already carries peer evidence (the
	// PI path, where the PI pre-attests itself alongside the real query),
	// attest it now.
	if env.SourceCodeClaim != "" && env.LoadedPipelineClaim != "" && env.Nonce != "" {
		nonceBytes, err := base64.StdEncoding.DecodeString(env.Nonce)
		if err != nil {
			return wire.ErrorReply(wire.KindProtocol)
		}
		var quote hwattest.Quote
		if env.HWPlatform != "" {
			raw, err := base64.StdEncoding.DecodeString(env.HWQuote)
			if err != nil {
				return wire.ErrorReply(wire.KindProtocol)
			}
			quote = hwattest.Quote{Platform: hwattest.Platform(env.HWPlatform), Raw: raw}
		}
		if _, err := d.verifierClient.RequestAttestation(ctx, env.SourceCodeClaim, env.LoadedPipelineClaim, nonceBytes, route.PipelineName, identityPI, quote); err != nil {
			d.audit(ctx, audit.EventAttestationRejected, env.Username, route.Name, nil)
			return wire.ErrorReply(wire.KindAttestation)
		}
		qs.peerAttested = true
		d.audit(ctx, audit.EventAttestationIssued, env.Username, route.Name, nil)
	}

	// Step 3: authenticate (username, password).
	userID, err := d.authn.Authenticate(ctx, env.Username, env.Password)
	if err != nil {
		d.audit(ctx, audit.EventAuthFailed, env.Username, route.Name, nil)
		return wire.ErrorReply(wire.KindAuth)
	}
	qs.userID = userID
	d.audit(ctx, audit.EventAuthSucceeded, env.Username, route.Name, nil)

	// Reject any caller-supplied reserved/unknown parameter before any
	// validator runs (spec.md §3 invariant).
	if err := template.RejectReservedParams(env.Params); err != nil {
		return wire.ErrorReply(wire.KindParameter)
	}

	// Step 4: params.attestation = false initially.
	params := template.WithAttestation(env.Params, false)
	params["user_id"] = userID
	qs.params = params

	state = StateExecuting
	result, err := d.bindAndExecute(ctx, route, params)
	if err != nil {
		return d.parameterOrStoreError(err)
	}

	// Step 7: if any released field is the sentinel, conduct mutual
	// attestation of the caller and re-execute with attestation=true.
	if sentinelPresent(result) {
		state = StateAttestationRequired
		metrics.AttestationRequiredReleases.WithLabelValues(route.Name).Inc()
		attested := qs.peerAttested

		if !attested {
			state = StateAwaitCallerEvidence
			if requestCallerEvidence == nil {
				return wire.ErrorReply(wire.KindAttestation)
			}
			_, _, err := requestCallerEvidence(ctx)
			if err != nil {
				d.audit(ctx, audit.EventAttestationRejected, env.Username, route.Name, nil)
				return wire.ErrorReply(wire.KindAttestation)
			}
			attested = true
		}

		params = template.WithAttestation(params, attested)
		state = StateExecuting
		result, err = d.bindAndExecute(ctx, route, params)
		if err != nil {
			return d.parameterOrStoreError(err)
		}
	}

	state = StateSigning
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return wire.ErrorReply(wire.KindStore)
	}
	signed, err := d.signer.SignResult(resultBytes)
	if err != nil {
		return wire.ErrorReply(wire.KindStore)
	}
	d.audit(ctx, audit.EventResultSigned, env.Username, route.Name, nil)
	state = StateDone
	_ = state

	return wire.Envelope{Response: signed}
}

func (d *DAP) bindAndExecute(ctx context.Context, route Route, params map[string]any) ([]bson.M, error) {
	approved, err := d.pipelines.Get(route.PipelineName)
	if err != nil {
		return nil, err
	}
	bound, err := template.Bind(approved.Stages, params)
	if err != nil {
		return nil, err
	}
	pipelineArr, ok := bound.(bson.A)
	if !ok {
		return nil, store.ErrExecute.Wrap("bound template root is not a pipeline array")
	}
	if err := template.CheckNoResidualPlaceholders(pipelineArr); err != nil {
		return nil, err
	}
	return d.docs.Aggregate(ctx, route.Collection, pipelineArr)
}

func (d *DAP) parameterOrStoreError(err error) wire.Envelope {
	switch {
	case errorsIsParameter(err):
		return wire.ErrorReply(wire.KindParameter)
	default:
		return wire.ErrorReply(wire.KindStore)
	}
}

func sentinelPresent(docs []bson.M) bool {
	for _, d := range docs {
		for _, v := range d {
			if s, ok := v.(string); ok && s == pipeline.SentinelAttestationRequired {
				return true
			}
		}
	}
	return false
}

func (d *DAP) audit(ctx context.Context, ev audit.EventType, actor, resource string, details map[string]any) {
	if d.auditLog == nil {
		return
	}
	d.auditLog.Log(ctx, audit.Event{Type: ev, Actor: actor, Resource: resource, Details: details, Timestamp: time.Now()})
}

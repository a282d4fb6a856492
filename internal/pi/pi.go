// Package pi implements spec.md §4.3: the Personal Intermediary, an
// attested proxy that obtains the DAP's signed result on a client's behalf
// and may run a second, approved aggregation on top of it before signing
// the final answer for the Client.
package pi

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/virtengine/vericare/internal/buildid"
	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/pipeline"
	"github.com/virtengine/vericare/internal/signing"
	"github.com/virtengine/vericare/internal/store"
	"github.com/virtengine/vericare/internal/template"
)

const identityDAP = "dap"

// FollowUp names a second-stage aggregation PI runs over the DAP's result,
// registered as its own approved pipeline so its canonical bytes are
// equally subject to attestation (spec.md §4.3 "Follow-up computation").
type FollowUp struct {
	Name         string
	PipelineName string
	Collection   string
}

// PI is the Personal Intermediary runtime.
type PI struct {
	signer         *signing.Signer
	sourceImage    buildid.Image
	pipelines      *pipeline.Registry
	followUps      map[string]FollowUp
	docs           store.Store
	verifierClient VerifierClient
	dapClient      DAPClient
	hwQuote        hwattest.Quote
	log            zerolog.Logger
}

// New builds a PI runtime. hwQuote is the hardware attestation quote
// template PI should attach to its own evidence, mirroring the DAP's
// (internal/dap.New); pass the zero value to run without hardware evidence.
func New(signer *signing.Signer, sourceImage buildid.Image, pipelines *pipeline.Registry, followUps map[string]FollowUp, docs store.Store, vc VerifierClient, dc DAPClient, hwQuote hwattest.Quote, log zerolog.Logger) *PI {
	return &PI{
		signer:         signer,
		sourceImage:    sourceImage,
		pipelines:      pipelines,
		followUps:      followUps,
		docs:           docs,
		verifierClient: vc,
		dapClient:      dc,
		hwQuote:        hwQuote,
		log:            log.With().Str("component", "pi").Logger(),
	}
}

// HandleEvidenceRequest mirrors the DAP's evidence operation from the
// opposite side: PI signs its own source bytes and its own loaded
// follow-up template under the caller-supplied nonce (spec.md §4.3).
func (p *PI) HandleEvidenceRequest(nonce []byte, followUpPipelineName string) (sourceClaim, pipelineClaim string, quote hwattest.Quote, err error) {
	var canonical string
	if followUpPipelineName != "" {
		approved, aerr := p.pipelines.Get(followUpPipelineName)
		if aerr != nil {
			return "", "", hwattest.Quote{}, aerr
		}
		canonical, err = approved.Canonical()
		if err != nil {
			return "", "", hwattest.Quote{}, err
		}
	}
	sourceClaim = p.signer.SignClaim(p.sourceImage, nonce)
	pipelineClaim = p.signer.SignClaim([]byte(canonical), nonce)
	quote = p.hwQuote
	quote.ReportData = nonce
	return sourceClaim, pipelineClaim, quote, nil
}

// HandleClientQuery implements spec.md §2's PI control-flow steps 2-10:
// obtain a nonce from the Verifier, exchange evidence with the DAP,
// attest the DAP, send the real query under mutual attestation, then
// optionally run a follow-up aggregation before signing the answer for
// the Client.
func (p *PI) HandleClientQuery(ctx context.Context, route, username, password string, params map[string]any, followUpName string) (string, error) {
	if followUpName != "" {
		if _, ok := p.followUps[followUpName]; !ok {
			return "", ErrFollowUp.Wrapf("unknown follow-up %q", followUpName)
		}
	}

	// Step 2: nonce from Verifier.
	nonceV, err := p.verifierClient.RequestNonce(ctx)
	if err != nil {
		return "", err
	}

	// Step 3-4: evidence request to DAP.
	dapSourceClaim, dapPipelineClaim, _, requestedNonceB64, dapQuote, err := p.dapClient.RequestEvidence(ctx, nonceV, route)
	if err != nil {
		return "", err
	}

	// Step 5-6: attest the DAP via the Verifier under nonce_v.
	if _, err := p.verifierClient.RequestAttestation(ctx, dapSourceClaim, dapPipelineClaim, nonceV, route, identityDAP, dapQuote); err != nil {
		return "", ErrDAPAttestation.Wrap(err.Error())
	}

	// Step 7: compute PI's own two claims under the DAP-issued nonce_d and
	// send the real query, with PI's claims attached, to the DAP.
	nonceD, err := base64.StdEncoding.DecodeString(requestedNonceB64)
	if err != nil {
		return "", ErrDAPAttestation.Wrap("DAP did not supply a reverse nonce")
	}
	piSourceClaim, piPipelineClaim, piQuote, err := p.HandleEvidenceRequest(nonceD, followUpName)
	if err != nil {
		return "", err
	}

	signedResult, err := p.dapClient.SendQuery(ctx, route, username, password, params, piSourceClaim, piPipelineClaim, requestedNonceB64, piQuote)
	if err != nil {
		return "", err
	}

	if followUpName == "" {
		return signedResult, nil
	}

	// Step 10: optional follow-up computation on top of the DAP's result.
	return p.runFollowUp(ctx, followUpName, signedResult)
}

// runFollowUp decodes the DAP's signed value, executes the registered
// follow-up pipeline (e.g. is_bp_above_mean), and signs the outcome for
// the Client (spec.md §4.3, §8 scenario 5).
func (p *PI) runFollowUp(ctx context.Context, followUpName, dapSignedResult string) (string, error) {
	fu, ok := p.followUps[followUpName]
	if !ok {
		return "", ErrFollowUp.Wrapf("unknown follow-up %q", followUpName)
	}

	var observedValue any
	if err := json.Unmarshal([]byte(dapSignedResult), &observedValue); err != nil {
		// dapSignedResult may be "<b64payload>.<b64sig>" rather than raw
		// JSON if the caller passed the DAP's wire envelope through
		// unchanged; decode that form instead.
		payload, _, derr := splitSigned(dapSignedResult)
		if derr != nil {
			return "", ErrFollowUp.Wrap(err.Error())
		}
		if err := json.Unmarshal(payload, &observedValue); err != nil {
			return "", ErrFollowUp.Wrap(err.Error())
		}
	}

	approved, err := p.pipelines.Get(fu.PipelineName)
	if err != nil {
		return "", err
	}
	params := map[string]any{"height_input": observedValue}
	bound, err := template.Bind(approved.Stages, params)
	if err != nil {
		return "", err
	}
	pipelineArr, ok := bound.(bson.A)
	if !ok {
		return "", ErrFollowUp.Wrap("bound follow-up template is not a pipeline array")
	}

	results, err := p.docs.Aggregate(ctx, fu.Collection, pipelineArr)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return p.signer.SignResult(out)
}

func splitSigned(blob string) ([]byte, []byte, error) {
	idx := -1
	for i := len(blob) - 1; i >= 0; i-- {
		if blob[i] == '.' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, signing.ErrInvalidSignature.Wrap("malformed signed blob")
	}
	payload, err := base64.StdEncoding.DecodeString(blob[:idx])
	if err != nil {
		return nil, nil, err
	}
	sig, err := base64.StdEncoding.DecodeString(blob[idx+1:])
	if err != nil {
		return nil, nil, err
	}
	return payload, sig, nil
}

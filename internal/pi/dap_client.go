package pi

import (
	"context"
	"encoding/base64"

	"cosmossdk.io/errors"

	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/wire"
)

var errDAPReject = errors.Register("pi", 10, "DAP rejected request")

// WireDAPClient drives DAPClient over an established wire.Conn to a DAP
// process.
type WireDAPClient struct {
	conn *wire.Conn
}

func NewWireDAPClient(conn *wire.Conn) *WireDAPClient {
	return &WireDAPClient{conn: conn}
}

func (c *WireDAPClient) RequestEvidence(ctx context.Context, nonce []byte, queryName string) (sourceClaim, pipelineClaim, receivedNonce, requestedNonce string, quote hwattest.Quote, err error) {
	req := wire.EvidenceRequest(base64.StdEncoding.EncodeToString(nonce), queryName)
	if err := c.conn.Send(req); err != nil {
		return "", "", "", "", hwattest.Quote{}, err
	}
	reply, err := c.conn.Recv()
	if err != nil {
		return "", "", "", "", hwattest.Quote{}, err
	}
	if reply.IsError() {
		return "", "", "", "", hwattest.Quote{}, errDAPReject.Wrap(reply.Error)
	}
	if reply.HWPlatform != "" {
		raw, derr := base64.StdEncoding.DecodeString(reply.HWQuote)
		if derr != nil {
			return "", "", "", "", hwattest.Quote{}, derr
		}
		quote = hwattest.Quote{Platform: hwattest.Platform(reply.HWPlatform), Raw: raw}
	}
	return reply.SourceCodeClaim, reply.LoadedPipelineClaim, reply.ReceivedNonce, reply.RequestedNonce, quote, nil
}

func (c *WireDAPClient) SendQuery(ctx context.Context, route, username, password string, params map[string]any, sourceClaim, pipelineClaim, nonce string, quote hwattest.Quote) (string, error) {
	req := wire.QueryRequest(route, username, password, params)
	req.SourceCodeClaim = sourceClaim
	req.LoadedPipelineClaim = pipelineClaim
	req.Nonce = nonce
	if quote.Platform != "" && quote.Platform != hwattest.PlatformNone {
		req.HWPlatform = string(quote.Platform)
		req.HWQuote = base64.StdEncoding.EncodeToString(quote.Raw)
	}

	if err := c.conn.Send(req); err != nil {
		return "", err
	}
	reply, err := c.conn.Recv()
	if err != nil {
		return "", err
	}
	if reply.IsError() {
		return "", errDAPReject.Wrap(reply.Error)
	}
	return reply.Response, nil
}

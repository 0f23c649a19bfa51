package devledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayrten/wicker/didkey"
	"github.com/ayrten/wicker/ledger"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	trusteeSeed   = "000000000000000000000000Trustee1"
	trusteeDid    = "V4SGRU86Z58d6TV7PBUe6f"
	trusteeVerkey = "GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL"
	trusteeAbbrev = "~CoRER63DVYnWZtK8uAzNbx"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	s, err := New(&Args{})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return srv
}

func postNym(t *testing.T, srv *httptest.Server, req *ledger.NymRequest) *http.Response {
	t.Helper()

	b, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/nym", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func sign(t *testing.T, req *ledger.NymRequest, priv ed25519.PrivateKey) *ledger.NymRequest {
	t.Helper()

	payload, err := req.SigningBytes()
	require.NoError(t, err)
	req.Signature = base58.Encode(ed25519.Sign(priv, payload))

	return req
}

func TestGetNymUnknownIs404(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/nym/NoSuchDid111111111111")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegisterAndServeAbbreviated(t *testing.T) {
	srv := testServer(t)

	priv, err := didkey.KeyFromSeed(trusteeSeed)
	require.NoError(t, err)

	resp := postNym(t, srv, sign(t, &ledger.NymRequest{
		ReqID:  uuid.NewString(),
		Did:    trusteeDid,
		Verkey: trusteeVerkey,
	}, priv))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(srv.URL + "/nym/" + trusteeDid)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var nym ledger.NymData
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&nym))
	assert.Equal(t, trusteeDid, nym.Did)
	assert.Equal(t, trusteeAbbrev, nym.Verkey)
}

func TestUpdateNeedsCurrentKeySignature(t *testing.T) {
	srv := testServer(t)

	oldKey, err := didkey.KeyFromSeed(trusteeSeed)
	require.NoError(t, err)
	newKey, err := didkey.KeyFromSeed("000000000000000000000000Trustee2")
	require.NoError(t, err)
	newVerkey := didkey.Verkey(newKey.Public().(ed25519.PublicKey))

	resp := postNym(t, srv, sign(t, &ledger.NymRequest{
		ReqID: uuid.NewString(), Did: trusteeDid, Verkey: trusteeVerkey,
	}, oldKey))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// self-signed update must be refused
	resp = postNym(t, srv, sign(t, &ledger.NymRequest{
		ReqID: uuid.NewString(), Did: trusteeDid, Verkey: newVerkey,
	}, newKey))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postNym(t, srv, sign(t, &ledger.NymRequest{
		ReqID: uuid.NewString(), Did: trusteeDid, Verkey: newVerkey,
	}, oldKey))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitValidation(t *testing.T) {
	srv := testServer(t)

	// missing verkey fails binding validation
	resp := postNym(t, srv, &ledger.NymRequest{ReqID: uuid.NewString(), Did: trusteeDid})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unsigned request is refused
	resp = postNym(t, srv, &ledger.NymRequest{
		ReqID: uuid.NewString(), Did: trusteeDid, Verkey: trusteeVerkey,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

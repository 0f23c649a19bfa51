package did

import (
	"crypto/ed25519"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/ayrten/wicker/wallet"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	trusteeSeed   = "000000000000000000000000Trustee1"
	trusteeDid    = "V4SGRU86Z58d6TV7PBUe6f"
	trusteeVerkey = "GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL"

	trustee2Seed   = "000000000000000000000000Trustee2"
	trustee2Verkey = "BnSWTUQmdYCewSGFrRUhT6LmKdcCcSzRGqWXMPnEP168"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	w, err := wallet.Create(filepath.Join(t.TempDir(), "test.db"), "test-passphrase")
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	return NewRegistry(w)
}

func TestCreateDeterministic(t *testing.T) {
	r := testRegistry(t)

	d, vk, err := r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)
	assert.Equal(t, trusteeDid, d)
	assert.Equal(t, trusteeVerkey, vk)

	rec, err := r.Get(d)
	require.NoError(t, err)
	assert.Equal(t, trusteeVerkey, rec.Verkey)
	assert.Equal(t, "ed25519", rec.VerkeyType)
	assert.Nil(t, rec.NextVerkey)
}

func TestCreateExplicitDidAndMethod(t *testing.T) {
	r := testRegistry(t)

	d, _, err := r.Create(CreateArgs{
		Did:      to.StringPtr(trusteeDid),
		Seed:     to.StringPtr(trustee2Seed),
		Method:   to.StringPtr("indy"),
		Metadata: to.StringPtr("a note"),
	})
	require.NoError(t, err)
	assert.Equal(t, "did:indy:"+trusteeDid, d)

	rec, err := r.Get(d)
	require.NoError(t, err)
	require.NotNil(t, rec.Method)
	assert.Equal(t, "indy", *rec.Method)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, "a note", *rec.Metadata)
}

func TestCreateRandom(t *testing.T) {
	r := testRegistry(t)

	d1, vk1, err := r.Create(CreateArgs{})
	require.NoError(t, err)
	d2, vk2, err := r.Create(CreateArgs{})
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
	assert.NotEqual(t, vk1, vk2)
}

func TestCreateDuplicate(t *testing.T) {
	r := testRegistry(t)

	_, _, err := r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)

	// same seed derives the same DID
	_, _, err = r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	assert.ErrorIs(t, err, ErrDuplicate)

	// the failing call must not have touched the stored record
	rec, err := r.Get(trusteeDid)
	require.NoError(t, err)
	assert.Equal(t, trusteeVerkey, rec.Verkey)
}

func TestCreateBadSeed(t *testing.T) {
	r := testRegistry(t)

	_, _, err := r.Create(CreateArgs{Seed: to.StringPtr("short")})
	assert.Error(t, err)
}

func TestGetNotFound(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Get("NoSuchDid111111111111")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	r := testRegistry(t)

	recs, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, _, err = r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)
	_, _, err = r.Create(CreateArgs{Seed: to.StringPtr(trustee2Seed)})
	require.NoError(t, err)

	recs, err = r.List()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSetMetadata(t *testing.T) {
	r := testRegistry(t)

	d, _, err := r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)

	require.NoError(t, r.SetMetadata(d, "updated"))

	rec, err := r.Get(d)
	require.NoError(t, err)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, "updated", *rec.Metadata)

	assert.ErrorIs(t, r.SetMetadata("NoSuchDid111111111111", "x"), ErrNotFound)
}

func TestReplaceKeysStartApply(t *testing.T) {
	r := testRegistry(t)

	d, vk, err := r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)

	candidate, err := r.ReplaceKeysStart(d, to.StringPtr(trustee2Seed))
	require.NoError(t, err)
	assert.Equal(t, trustee2Verkey, candidate)

	rec, err := r.Get(d)
	require.NoError(t, err)
	assert.Equal(t, vk, rec.Verkey, "start must not touch the current verkey")
	require.NotNil(t, rec.NextVerkey)
	assert.Equal(t, candidate, *rec.NextVerkey)

	require.NoError(t, r.ReplaceKeysApply(d))

	rec, err = r.Get(d)
	require.NoError(t, err)
	assert.Equal(t, candidate, rec.Verkey)
	assert.Nil(t, rec.NextVerkey)

	// nothing left to apply
	err = r.ReplaceKeysApply(d)
	assert.ErrorIs(t, err, ErrNoPendingRotation)

	rec2, err := r.Get(d)
	require.NoError(t, err)
	assert.Equal(t, rec, rec2, "failed apply must leave the record unchanged")
}

func TestReplaceKeysStartUnknownDid(t *testing.T) {
	r := testRegistry(t)

	_, err := r.ReplaceKeysStart("NoSuchDid111111111111", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceKeysStartLastRequestWins(t *testing.T) {
	r := testRegistry(t)

	d, _, err := r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)

	first, err := r.ReplaceKeysStart(d, nil)
	require.NoError(t, err)
	second, err := r.ReplaceKeysStart(d, nil)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	rec, err := r.Get(d)
	require.NoError(t, err)
	require.NotNil(t, rec.NextVerkey)
	assert.Equal(t, second, *rec.NextVerkey)
}

func TestQualify(t *testing.T) {
	r := testRegistry(t)

	d, _, err := r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)

	qualified, err := r.Qualify(d, "indy")
	require.NoError(t, err)
	assert.Equal(t, "did:indy:"+d, qualified)

	_, err = r.Get(d)
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := r.Get(qualified)
	require.NoError(t, err)
	assert.Equal(t, qualified, rec.Did)
	assert.Equal(t, trusteeVerkey, rec.Verkey)
}

func TestSign(t *testing.T) {
	r := testRegistry(t)

	d, vk, err := r.Create(CreateArgs{Seed: to.StringPtr(trusteeSeed)})
	require.NoError(t, err)

	msg := []byte("payload")
	sig, err := r.Sign(d, msg)
	require.NoError(t, err)

	pub, err := base58.Decode(vk)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), msg, sig))
}

func TestImport(t *testing.T) {
	r := testRegistry(t)

	file := `{
		"version": 1,
		"dids": [
			{"did": null, "seed": "000000000000000000000000Trustee1"},
			{"seed": "000000000000000000000000Steward1"}
		]
	}`

	created, err := r.Import(strings.NewReader(file))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, trusteeDid, created[0][0])
	assert.Equal(t, trusteeVerkey, created[0][1])
}

func TestImportBadVersion(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Import(strings.NewReader(`{"version": 2, "dids": [{"seed": "x"}]}`))
	assert.Error(t, err)
}

func TestImportMalformed(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Import(strings.NewReader(`not json`))
	assert.Error(t, err)
}

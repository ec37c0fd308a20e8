package auth_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func TestJWT_IssueAndVerify(t *testing.T) {
	j := auth.JWT{Secret: []byte("s3cret"), TokenTTL: time.Minute}

	tok, exp, err := j.Issue(alice, auth.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := j.Verify(tok)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	addr, err := claims.Address()
	require.NoError(t, err)
	assert.Equal(t, alice, addr)
}

func TestJWT_RejectsBadTokens(t *testing.T) {
	j := auth.JWT{Secret: []byte("s3cret"), TokenTTL: time.Minute}

	other := auth.JWT{Secret: []byte("other"), TokenTTL: time.Minute}
	tok, _, err := other.Issue(alice, auth.RoleParticipant)
	require.NoError(t, err)
	_, err = j.Verify(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expired, _, err := j.Sign(auth.Claims{
		Role: auth.RoleParticipant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.Hex(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	require.NoError(t, err)
	_, err = j.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	noAddr, _, err := j.Sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}})
	require.NoError(t, err)
	_, err = j.Verify(noAddr)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.BearerToken("  bearer   abc "))
	assert.Empty(t, auth.BearerToken("Basic abc"))
	assert.Empty(t, auth.BearerToken("abc"))
}

type codeReader map[common.Address][]byte

func (c codeReader) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	if account == (common.Address{}) {
		return nil, errors.New("rpc down")
	}
	return c[account], nil
}

func TestContractFilter(t *testing.T) {
	contract := common.HexToAddress("0x000000000000000000000000000000000000c0de")
	f := auth.NewContractFilter(codeReader{contract: {0x60, 0x80}}, time.Second)
	ctx := context.Background()

	assert.NoError(t, f.Allow(ctx, alice))

	err := f.Allow(ctx, contract)
	assert.ErrorIs(t, err, errs.ErrContractCaller)
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))

	err = f.Allow(ctx, common.Address{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrContractCaller)
}

package postgres

import (
	"context"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/defistate-amm/engine"
)

func TestOpen_InvalidOptions(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.ErrorContains(t, err, "dsn is required")

	_, err = Open(context.Background(), Options{DSN: "postgres://%zz"})
	assert.ErrorContains(t, err, "parse pg dsn")
}

func TestEncodeDecode(t *testing.T) {
	pool := engine.Pool{
		ID:       solana.MustPublicKeyFromBase58("8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj"),
		TokenA:   solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
		TokenB:   solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		ReserveA: math.MaxUint64,
		ReserveB: 42,
		LPSupply: 1 << 63,
		FeeBps:   30,
		Strategy: engine.HybridCFMM,
		Bump:     255,
	}

	args := encodePool(pool)
	require.Len(t, args, 9)

	r := row{
		id: args[0].(string), tokenA: args[1].(string), tokenB: args[2].(string),
		reserveA: args[3].(string), reserveB: args[4].(string), lpSupply: args[5].(string), feeBps: args[6].(string),
		strategy: args[7].(string),
		bump:     args[8].(int16),
	}
	assert.Equal(t, "18446744073709551615", r.reserveA)

	decoded, err := r.decode()
	require.NoError(t, err)
	assert.Equal(t, pool, decoded)
}

func TestDecode_Invalid(t *testing.T) {
	valid := row{
		id: "8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj", tokenA: "So11111111111111111111111111111111111111112", tokenB: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		reserveA: "1", reserveB: "1", lpSupply: "1", feeBps: "30", strategy: "constant-product", bump: 1,
	}
	_, err := valid.decode()
	require.NoError(t, err)

	testCases := []struct {
		name   string
		mutate func(*row)
	}{
		{name: "bad key", mutate: func(r *row) { r.tokenA = "not-base58!" }},
		{name: "negative amount", mutate: func(r *row) { r.reserveA = "-1" }},
		{name: "amount above uint64", mutate: func(r *row) { r.lpSupply = "18446744073709551616" }},
		{name: "unknown strategy", mutate: func(r *row) { r.strategy = "curve" }},
		{name: "bump out of range", mutate: func(r *row) { r.bump = 256 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.mutate(&r)
			_, err := r.decode()
			assert.Error(t, err)
		})
	}
}

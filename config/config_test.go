package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stakepool.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
RPCAddress = "127.0.0.1:9650"
DataDir = "/tmp/stakepool"
OwnerAddress = "0x1000000000000000000000000000000000000001"
PoolAddress = "0x2000000000000000000000000000000000000002"
AssetAddress = "0x3000000000000000000000000000000000000003"
MinimumStake = "100"
DailyYieldRateScaled = "100000000"

[[Genesis]]
Address = "0x4000000000000000000000000000000000000004"
Balance = "1000000"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9650", cfg.RPCAddress)

	min, err := cfg.MinimumStakeAmount()
	require.NoError(t, err)
	require.Zero(t, min.Cmp(big.NewInt(100)))

	rate, err := cfg.DailyYieldRate()
	require.NoError(t, err)
	require.Zero(t, rate.Cmp(big.NewInt(100_000_000)))

	require.Len(t, cfg.Genesis, 1)
	require.Equal(t, "POOL", cfg.AssetSymbol, "symbol defaults when omitted")
	require.Greater(t, cfg.RateLimitPerMinute, 0.0)
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakepool.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.NotEmpty(t, cfg.RPCAddress)

	// The generated file round-trips.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, again.RPCAddress)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"zero owner":   {`OwnerAddress = "0x1000000000000000000000000000000000000001"`, `OwnerAddress = "0x0000000000000000000000000000000000000000"`},
		"bad asset":    {`AssetAddress = "0x3000000000000000000000000000000000000003"`, `AssetAddress = "not-an-address"`},
		"zero minimum": {`MinimumStake = "100"`, `MinimumStake = "0"`},
		"zero rate":    {`DailyYieldRateScaled = "100000000"`, `DailyYieldRateScaled = "0"`},
		"junk rate":    {`DailyYieldRateScaled = "100000000"`, `DailyYieldRateScaled = "fast"`},
	}
	for name, swap := range cases {
		t.Run(name, func(t *testing.T) {
			body := strings.Replace(validConfig, swap[0], swap[1], 1)
			require.NotEqual(t, validConfig, body, "fixture line not found")
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

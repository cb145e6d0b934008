package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
mode: sim
fund:
  strategy: yield
  min_investment: "1.5"
  buy_fee_bps: 25
  sell_fee_bps: 50
  fee_collector: "0x00000000000000000000000000000000000000c0"
  owner: "0x00000000000000000000000000000000000000a0"
sim:
  asset_decimals: 18
  list_reserve: false
store:
  type: badger
  dir: /tmp/fund-state
server:
  listen: ":9000"
  admin_key: from-file
snapshot_cron: "*/30 * * * * *"
log:
  level: debug
`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromFile(writeTemp(t, "fund.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ModeSim, cfg.Mode)
	assert.Equal(t, "yield", cfg.Fund.Strategy)
	assert.Equal(t, "1.5", cfg.Fund.MinInvestment)
	assert.Equal(t, uint16(25), cfg.Fund.BuyFeeBps)
	assert.Equal(t, common.HexToAddress("0xa0"), cfg.Fund.Owner)
	assert.Equal(t, uint8(18), cfg.Sim.AssetDecimals)
	assert.False(t, cfg.Sim.ListReserve)
	assert.Equal(t, "badger", cfg.Store.Type)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "*/30 * * * * *", cfg.SnapshotCron)
	assert.Equal(t, "data/journal.db", cfg.JournalPath)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
	assert.Same(t, cfg, Get())
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("SHAREFUND_ADMIN_KEY", "from-env")
	t.Setenv("SHAREFUND_BUY_FEE_BPS", "40")
	cfg, err := LoadFromFile(writeTemp(t, "fund.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AdminKey)
	assert.Equal(t, uint16(40), cfg.Fund.BuyFeeBps)
}

func TestValidate(t *testing.T) {
	_, err := LoadFromFile(writeTemp(t, "fund.yaml", "mode: chain\nfund:\n  owner: \"0x01\"\n  fee_collector: \"0x02\"\nserver:\n  admin_key: k\n"))
	assert.ErrorContains(t, err, "rpc_url")

	_, err = LoadFromFile(writeTemp(t, "fund.yaml", "fund:\n  owner: \"0x01\"\n  fee_collector: \"0x02\"\n  buy_fee_bps: 1001\nserver:\n  admin_key: k\n"))
	assert.ErrorContains(t, err, "1000")

	_, err = LoadFromFile(writeTemp(t, "fund.toml", "x"))
	assert.ErrorContains(t, err, "不支持")

	_, err = LoadFromFile(writeTemp(t, "fund.json", `{"fund":{"owner":"0x01","fee_collector":"0x02","strategy":"lever"},"server":{"admin_key":"k"}}`))
	assert.ErrorContains(t, err, "lever")
}

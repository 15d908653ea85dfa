package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
tick_rate_hz: 10
lockpick:
  duration_seconds: 5
map:
  zones:
    - property_id: house_1
      name: Small House
      min: [0, 0, 0]
      max: [100, 100, 100]
      price: 500
  signs:
    - property_id: house_1
      pos: [10, 0, 10]
`), 0o644))

	tu, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, 10, tu.TickRateHz)
	require.Equal(t, 5.0, tu.Lockpick.DurationSeconds)
	require.Equal(t, 140.0, tu.Lockpick.CancelDistance, "unset fields keep defaults")
	require.Len(t, tu.Map.Zones, 1)
	require.Equal(t, 500, tu.Map.Zones[0].Price)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
map:
  signs:
    - property_id: nowhere
`), 0o644))

	_, err := Load(p)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestTicks(t *testing.T) {
	tu := Defaults()
	tu.TickRateHz = 20
	require.Equal(t, 100, tu.Ticks(5))
	require.Equal(t, 7, tu.Ticks(0.35))
	require.Equal(t, 0, tu.Ticks(0))
	require.InDelta(t, 0.05, tu.TickSeconds(), 1e-9)
}

func TestShopItem(t *testing.T) {
	it, ok := Defaults().ShopItem("crypto_miner")
	require.True(t, ok)
	require.Equal(t, 1500, it.Price)
	_, ok = Defaults().ShopItem("nope")
	require.False(t, ok)
}

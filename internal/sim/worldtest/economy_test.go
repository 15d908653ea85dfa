package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"citycore/internal/protocol"
)

func buy(h *Harness, conn, item string) protocol.RequestMsg {
	req := h.Req(conn, protocol.KindBuyItem)
	req.Item = item
	return req
}

func TestBuyItem_InsufficientFundsSpawnsNothing(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	require.Equal(t, 1000, h.Self(a).Balance)
	owned := h.W.DebugOwned(a)

	e, ok := h.Do(buy(h, a, "crypto_miner"))
	require.True(t, ok)
	require.False(t, e.OK)
	require.Equal(t, protocol.ErrNoResource, e.Code)

	require.Equal(t, 1000, h.Self(a).Balance)
	require.Equal(t, owned, h.W.DebugOwned(a))
	_, found := h.W.DebugFind("Crypto Miner")
	require.False(t, found)
}

func TestBuyItem_SpawnsOwnedItem(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn

	e, ok := h.Do(buy(h, a, "burger"))
	require.True(t, ok)
	require.True(t, e.OK, e.Reason)
	require.Equal(t, 975, h.Self(a).Balance)

	burger := h.Find("Burger")
	require.Equal(t, a, burger.Owner)
	require.Equal(t, "burger", burger.Kind)
}

func TestBuyItem_Rejections(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn

	e, _ := h.Do(buy(h, a, "jetpack"))
	require.Equal(t, protocol.ErrInvalidTarget, e.Code)

	far := buy(h, a, "burger")
	far.Pos = &[3]float64{5000, 0, 0}
	e, _ = h.Do(far)
	require.Equal(t, protocol.ErrBlocked, e.Code)

	require.Equal(t, 1000, h.Self(a).Balance)
}

func TestConsumable_RestoresHungerAndDisappears(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	h.MustDo(a, buy(h, a, "burger"))
	h.StepSeconds(10)
	hungry := h.Self(a).Hunger
	require.Less(t, hungry, 100.0)

	burger := h.Find("Burger")
	use := h.Req(a, protocol.KindUse)
	use.Target = burger.ID
	e, ok := h.Do(use)
	require.True(t, ok)
	require.True(t, e.OK, e.Reason)

	require.Greater(t, h.Self(a).Hunger, hungry)
	require.False(t, h.W.DebugAlive(burger.ID))
}

func TestCryptoMiner_PaysOwnerPerInterval(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn

	add := h.Req(a, protocol.KindAddMoney)
	add.Amount = 1000
	h.MustDo(a, add)
	require.Equal(t, 2000, h.Self(a).Balance)

	h.MustDo(a, buy(h, a, "crypto_miner"))
	require.Equal(t, 500, h.Self(a).Balance)

	// One second is ten ticks; the purchase tick already counts.
	h.StepFor(30)
	require.Equal(t, 503, h.Self(a).Balance)
}

func TestCryptoMiner_StopsPayingWhenOwnerLeaves(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	add := h.Req(a, protocol.KindAddMoney)
	add.Amount = 1000
	h.MustDo(a, add)
	h.MustDo(a, buy(h, a, "crypto_miner"))
	miner := h.Find("Crypto Miner")

	h.Leave(a)
	require.False(t, h.W.DebugAlive(miner.ID))
	h.StepFor(20)
}

func TestMiner_AccessHintNeedsProperty(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	add := h.Req(a, protocol.KindAddMoney)
	add.Amount = 1000
	h.MustDo(a, add)
	h.MustDo(a, buy(h, a, "crypto_miner"))
	miner := h.Find("Crypto Miner")

	info := h.Req(a, protocol.KindAccessInfo)
	info.Target = miner.ID
	h.Do(info)
	ai, ok := h.LastAccess(a)
	require.True(t, ok)
	require.False(t, ai.Allowed)
	require.Equal(t, "No access", ai.Reason)
	require.Equal(t, "Manage Miner", ai.Prompt)

	// Owning the house it stands in grants access.
	sign := h.Find("For Sale: Small House")
	use := h.Req(a, protocol.KindUse)
	use.Target = sign.ID
	h.MustDo(a, use)

	h.Do(info)
	ai, _ = h.LastAccess(a)
	require.True(t, ai.Allowed)

	use.Target = miner.ID
	e, ok := h.Do(use)
	require.True(t, ok)
	require.True(t, e.OK, e.Reason)
}

func TestMiningNode_DepletesDropsChunkAndRespawns(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	node := h.Find("Quarry Rock")
	h.SetPos(a, [3]float64{-290, 0, 0})

	use := h.Req(a, protocol.KindUse)
	use.Target = node.ID
	for i := 0; i < 3; i++ {
		e, ok := h.Do(use)
		require.True(t, ok)
		require.True(t, e.OK, "hit %d: %s", i, e.Reason)
	}
	require.Equal(t, 5, h.Self(a).Stone)

	e, _ := h.Do(use)
	require.False(t, e.OK, "depleted node refuses hits")

	chunk := h.Find("Rock Chunk")
	pick := h.Req(a, protocol.KindUse)
	pick.Target = chunk.ID
	h.MustDo(a, pick)
	require.Equal(t, 6, h.Self(a).Stone)
	require.False(t, h.W.DebugAlive(chunk.ID))

	h.StepSeconds(2)
	e, _ = h.Do(use)
	require.True(t, e.OK, "node grows back")
}

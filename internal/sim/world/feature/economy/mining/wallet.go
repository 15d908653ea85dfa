package mining

import "citycore/internal/sim/world/gateway"

// Wallet holds raw resources gathered by a player.
type Wallet struct {
	host  gateway.Host
	stone int
	iron  int
}

func NewWallet(host gateway.Host) *Wallet { return &Wallet{host: host} }

func (w *Wallet) ok(amount int) bool {
	return w != nil && w.host != nil && w.host.IsHost() && amount > 0
}

func (w *Wallet) AddStone(amount int) {
	if w.ok(amount) {
		w.stone += amount
	}
}

func (w *Wallet) AddIronOre(amount int) {
	if w.ok(amount) {
		w.iron += amount
	}
}

func (w *Wallet) Stone() int   { return w.stone }
func (w *Wallet) IronOre() int { return w.iron }

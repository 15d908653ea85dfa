package mining

import "fmt"

type NodeConfig struct {
	Name          string
	MaxHits       int
	RespawnTicks  int
	CooldownTicks int
	Reward        int
}

// Node is a mineable rock. Hits are rate limited; the last hit depletes it
// and pays the reward.
type Node struct {
	cfg NodeConfig

	hitsLeft int
	depleted bool
	nextHit  uint64
}

func NewNode(cfg NodeConfig) *Node {
	if cfg.MaxHits < 1 {
		cfg.MaxHits = 1
	}
	if cfg.Name == "" {
		cfg.Name = "Rock"
	}
	return &Node{cfg: cfg, hitsLeft: cfg.MaxHits}
}

type Hit struct {
	Accepted bool
	Depleted bool
	Reward   int
}

func (n *Node) Hit(now uint64) Hit {
	if now < n.nextHit {
		return Hit{}
	}
	n.nextHit = now + uint64(n.cfg.CooldownTicks)
	if n.depleted {
		return Hit{}
	}
	n.hitsLeft--
	if n.hitsLeft > 0 {
		return Hit{Accepted: true}
	}
	n.depleted = true
	return Hit{Accepted: true, Depleted: true, Reward: n.cfg.Reward}
}

// Restore makes a depleted node mineable again.
func (n *Node) Restore() {
	n.hitsLeft = n.cfg.MaxHits
	n.depleted = false
}

func (n *Node) Depleted() bool    { return n.depleted }
func (n *Node) HitsLeft() int     { return n.hitsLeft }
func (n *Node) RespawnTicks() int { return n.cfg.RespawnTicks }
func (n *Node) Prompt() string    { return fmt.Sprintf("Mine %s", n.cfg.Name) }

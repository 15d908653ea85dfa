package tuning

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	WorldID     string  `yaml:"world_id"`
	TickRateHz  int     `yaml:"tick_rate_hz"`
	MaxMoveStep float64 `yaml:"max_move_step"`

	Economy     Economy     `yaml:"economy"`
	Needs       Needs       `yaml:"needs"`
	Health      Health      `yaml:"health"`
	Combat      Combat      `yaml:"combat"`
	Interaction Interaction `yaml:"interaction"`
	Lockpick    Lockpick    `yaml:"lockpick"`
	Templates   Templates   `yaml:"templates"`
	Shop        Shop        `yaml:"shop"`
	Debug       Debug       `yaml:"debug"`
	Map         Map         `yaml:"map"`
}

type Economy struct {
	StartingBalance       int `yaml:"starting_balance"`
	PropertyRefundPercent int `yaml:"property_refund_percent"`
}

type Needs struct {
	MaxHunger             float64 `yaml:"max_hunger"`
	MaxThirst             float64 `yaml:"max_thirst"`
	HungerDrainPerSecond  float64 `yaml:"hunger_drain_per_second"`
	ThirstDrainPerSecond  float64 `yaml:"thirst_drain_per_second"`
	StarveDamagePerSecond float64 `yaml:"starve_damage_per_second"`
}

type Health struct {
	MaxHealth              float64 `yaml:"max_health"`
	AutoRespawn            bool    `yaml:"auto_respawn"`
	RespawnDelaySeconds    float64 `yaml:"respawn_delay_seconds"`
	RagdollLifetimeSeconds float64 `yaml:"ragdoll_lifetime_seconds"`
}

type Combat struct {
	PunchRange           float64 `yaml:"punch_range"`
	PunchDamage          float64 `yaml:"punch_damage"`
	PunchCooldownSeconds float64 `yaml:"punch_cooldown_seconds"`
}

type Interaction struct {
	UseDistance   float64 `yaml:"use_distance"`
	TraceDistance float64 `yaml:"trace_distance"`
}

type Lockpick struct {
	DurationSeconds float64 `yaml:"duration_seconds"`
	CancelDistance  float64 `yaml:"cancel_distance"`
}

// Templates name the spawnable prefabs. An empty state template disables
// player-state creation entirely.
type Templates struct {
	State   string            `yaml:"state"`
	Pawns   map[string]string `yaml:"pawns"`
	Ragdoll string            `yaml:"ragdoll"`
	Chunk   string            `yaml:"chunk"`
}

type Shop struct {
	MaxPlaceDistance float64    `yaml:"max_place_distance"`
	Items            []ShopItem `yaml:"items"`
}

type ShopItem struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Price    int    `yaml:"price"`
	Category string `yaml:"category"`
	Template string `yaml:"template"`

	HungerGain float64 `yaml:"hunger_gain,omitempty"`
	ThirstGain float64 `yaml:"thirst_gain,omitempty"`

	IncomePerInterval int     `yaml:"income_per_interval,omitempty"`
	IntervalSeconds   float64 `yaml:"interval_seconds,omitempty"`
}

type Debug struct {
	AllowCheats bool `yaml:"allow_cheats"`
}

type Map struct {
	SpawnPoints  [][3]float64    `yaml:"spawn_points"`
	Zones        []ZoneDef       `yaml:"zones"`
	Doors        []DoorDef       `yaml:"doors"`
	Signs        []SignDef       `yaml:"signs"`
	JobTerminals []TerminalDef   `yaml:"job_terminals"`
	MiningNodes  []MiningNodeDef `yaml:"mining_nodes"`
}

type ZoneDef struct {
	PropertyID string     `yaml:"property_id"`
	Name       string     `yaml:"name"`
	Min        [3]float64 `yaml:"min"`
	Max        [3]float64 `yaml:"max"`
	Price      int        `yaml:"price"`
	Government bool       `yaml:"government"`
}

type DoorDef struct {
	Name     string     `yaml:"name"`
	Pos      [3]float64 `yaml:"pos"`
	Locked   bool       `yaml:"locked"`
	Security string     `yaml:"security"`
}

type SignDef struct {
	PropertyID    string     `yaml:"property_id"`
	Pos           [3]float64 `yaml:"pos"`
	PriceOverride int        `yaml:"price_override"`
	DisallowSell  bool       `yaml:"disallow_sell"`
}

type TerminalDef struct {
	Pos [3]float64 `yaml:"pos"`
	Job string     `yaml:"job"`
}

type MiningNodeDef struct {
	Name           string     `yaml:"name"`
	Pos            [3]float64 `yaml:"pos"`
	MaxHits        int        `yaml:"max_hits"`
	RespawnSeconds float64    `yaml:"respawn_seconds"`
	SecondsPerHit  float64    `yaml:"seconds_per_hit"`
	StonePerNode   int        `yaml:"stone_per_node"`
}

func Defaults() Tuning {
	return Tuning{
		WorldID:     "city_1",
		TickRateHz:  20,
		MaxMoveStep: 40,
		Economy: Economy{
			StartingBalance:       10000,
			PropertyRefundPercent: 50,
		},
		Needs: Needs{
			MaxHunger:             100,
			MaxThirst:             100,
			HungerDrainPerSecond:  0.10,
			ThirstDrainPerSecond:  0.20,
			StarveDamagePerSecond: 2.0,
		},
		Health: Health{
			MaxHealth:              100,
			AutoRespawn:            true,
			RespawnDelaySeconds:    5,
			RagdollLifetimeSeconds: 5,
		},
		Combat: Combat{
			PunchRange:           80,
			PunchDamage:          10,
			PunchCooldownSeconds: 0.35,
		},
		Interaction: Interaction{
			UseDistance:   120,
			TraceDistance: 200,
		},
		Lockpick: Lockpick{
			DurationSeconds: 10,
			CancelDistance:  140,
		},
		Templates: Templates{
			State: "player_state",
			Pawns: map[string]string{
				"citizen": "pawn_citizen",
				"police":  "pawn_police",
				"thief":   "pawn_thief",
			},
			Ragdoll: "ragdoll",
			Chunk:   "rock_chunk",
		},
		Shop: Shop{
			MaxPlaceDistance: 500,
			Items: []ShopItem{
				{ID: "burger", Name: "Burger", Price: 25, Category: "food", Template: "burger", HungerGain: 40},
				{ID: "water", Name: "Water Bottle", Price: 10, Category: "drink", Template: "water", ThirstGain: 50},
				{ID: "crypto_miner", Name: "Crypto Miner", Price: 1500, Category: "devices", Template: "crypto_miner", IncomePerInterval: 1, IntervalSeconds: 1},
			},
		},
	}
}

// Load reads a tuning file on top of Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 240 {
		return fmt.Errorf("%w: tick_rate_hz=%d", ErrInvalid, t.TickRateHz)
	}
	if t.Economy.PropertyRefundPercent < 0 || t.Economy.PropertyRefundPercent > 100 {
		return fmt.Errorf("%w: property_refund_percent=%d", ErrInvalid, t.Economy.PropertyRefundPercent)
	}
	if t.Health.MaxHealth <= 0 {
		return fmt.Errorf("%w: max_health must be positive", ErrInvalid)
	}
	if t.Lockpick.DurationSeconds <= 0 || t.Lockpick.CancelDistance <= 0 {
		return fmt.Errorf("%w: lockpick duration/cancel_distance must be positive", ErrInvalid)
	}
	seen := map[string]bool{}
	for _, it := range t.Shop.Items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			return fmt.Errorf("%w: shop item without id", ErrInvalid)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate shop item %q", ErrInvalid, id)
		}
		seen[id] = true
		if it.Price < 0 {
			return fmt.Errorf("%w: shop item %q has negative price", ErrInvalid, id)
		}
	}
	zones := map[string]bool{}
	for _, z := range t.Map.Zones {
		if strings.TrimSpace(z.PropertyID) == "" {
			return fmt.Errorf("%w: zone without property_id", ErrInvalid)
		}
		if zones[z.PropertyID] {
			return fmt.Errorf("%w: duplicate zone %q", ErrInvalid, z.PropertyID)
		}
		zones[z.PropertyID] = true
		for i := 0; i < 3; i++ {
			if z.Min[i] > z.Max[i] {
				return fmt.Errorf("%w: zone %q has min > max", ErrInvalid, z.PropertyID)
			}
		}
	}
	for _, s := range t.Map.Signs {
		if !zones[s.PropertyID] {
			return fmt.Errorf("%w: sign references unknown zone %q", ErrInvalid, s.PropertyID)
		}
	}
	return nil
}

// TickSeconds is the simulated duration of one tick.
func (t Tuning) TickSeconds() float64 {
	if t.TickRateHz <= 0 {
		return 0
	}
	return 1 / float64(t.TickRateHz)
}

// Ticks converts seconds to a whole number of ticks, rounding up.
func (t Tuning) Ticks(seconds float64) int {
	if seconds <= 0 || t.TickRateHz <= 0 {
		return 0
	}
	return int(math.Ceil(seconds*float64(t.TickRateHz) - 1e-9))
}

func (t Tuning) ShopItem(id string) (ShopItem, bool) {
	for _, it := range t.Shop.Items {
		if it.ID == id {
			return it, true
		}
	}
	return ShopItem{}, false
}

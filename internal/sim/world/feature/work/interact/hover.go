package interact

import "citycore/internal/sim/entity"

// HoverCache is the client's memory of the last access hint. It only keeps
// answers for the target currently under the crosshair and forgets them the
// moment the crosshair moves to something else.
type HoverCache struct {
	hovered entity.ID
	allowed bool
	reason  string
	prompt  string
}

func NewHoverCache() *HoverCache { return &HoverCache{allowed: true} }

// Hover records the hovered target and reports whether it changed, in which
// case the caller should ask the authority for fresh access info.
func (c *HoverCache) Hover(target entity.ID) bool {
	if target == c.hovered {
		return false
	}
	c.hovered = target
	c.allowed = true
	c.reason = ""
	c.prompt = ""
	return target != 0
}

// Receive stores an answer if it is for the current target.
func (c *HoverCache) Receive(target entity.ID, allowed bool, reason, prompt string) bool {
	if target == 0 || target != c.hovered {
		return false
	}
	c.allowed = allowed
	c.reason = reason
	c.prompt = prompt
	return true
}

func (c *HoverCache) Hovered() entity.ID { return c.hovered }

// Prompt is what the HUD shows for the hovered target.
func (c *HoverCache) Prompt() string {
	if c.hovered == 0 {
		return "Use"
	}
	if !c.allowed {
		if c.reason == "" {
			return ReasonNoAccess
		}
		return c.reason
	}
	if c.prompt == "" {
		return "Use"
	}
	return c.prompt
}

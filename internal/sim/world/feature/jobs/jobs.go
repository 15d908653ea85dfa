// Package jobs tracks the role a player works as. Police may operate
// government property; each job spawns its own pawn template.
package jobs

import (
	"strings"

	"citycore/internal/sim/world/gateway"
)

type ID int

const (
	Citizen ID = iota
	Police
	Thief
)

var names = map[ID]string{Citizen: "citizen", Police: "police", Thief: "thief"}

func (j ID) String() string {
	if n, ok := names[j]; ok {
		return n
	}
	return "unknown"
}

func Parse(s string) (ID, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for id, n := range names {
		if n == s {
			return id, true
		}
	}
	return Citizen, false
}

// Title is the prompt-friendly name.
func (j ID) Title() string {
	n := j.String()
	if n == "" {
		return n
	}
	return strings.ToUpper(n[:1]) + n[1:]
}

// Government reports whether the job may operate government property.
func (j ID) Government() bool { return j == Police }

type Assignment struct {
	host    gateway.Host
	current ID
}

func New(host gateway.Host) *Assignment { return &Assignment{host: host} }

func (a *Assignment) Current() ID {
	if a == nil {
		return Citizen
	}
	return a.current
}

func (a *Assignment) Set(job ID) bool {
	if a == nil || a.host == nil || !a.host.IsHost() {
		return false
	}
	if _, ok := names[job]; !ok {
		return false
	}
	a.current = job
	return true
}

func (a *Assignment) Is(job ID) bool { return a != nil && a.current == job }

// PawnTemplate picks the pawn prefab for job, falling back to the citizen
// template.
func PawnTemplate(job ID, templates map[string]string) string {
	if t := templates[job.String()]; t != "" {
		return t
	}
	return templates[Citizen.String()]
}

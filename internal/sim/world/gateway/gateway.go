// Package gateway holds the authority role and the single guard every
// remotely-invoked mutation goes through.
package gateway

import (
	"github.com/sirupsen/logrus"

	"citycore/internal/logging"
	"citycore/internal/sim/entity"
)

// Host reports whether this process is the authority.
type Host interface {
	IsHost() bool
}

// Authority is a fixed Host role.
type Authority bool

func (a Authority) IsHost() bool { return bool(a) }

const (
	Server Authority = true
	Client Authority = false
)

// Rejection reasons, logged only.
const (
	ReasonNotHost       = "not_host"
	ReasonNoEntity      = "no_entity"
	ReasonHostOwned     = "host_owned"
	ReasonOwnerMismatch = "owner_mismatch"
)

type Gateway struct {
	host   Host
	lookup entity.Lookup
	log    logrus.FieldLogger
}

func New(host Host, lookup entity.Lookup, log logrus.FieldLogger) *Gateway {
	return &Gateway{host: host, lookup: lookup, log: logging.Component(log, "gateway")}
}

func (g *Gateway) IsHost() bool { return g != nil && g.host != nil && g.host.IsHost() }

// RequireAuthorityAndOwnership accepts a request against id only on the
// authority, for a live entity whose network owner is the claimed caller.
// Rejections are logged at debug and never reported to the caller.
func (g *Gateway) RequireAuthorityAndOwnership(id entity.ID, caller entity.ConnID) bool {
	reason := g.check(id, caller)
	if reason == "" {
		return true
	}
	if g != nil {
		g.log.WithFields(logrus.Fields{
			"caller": caller,
			"entity": id,
			"reason": reason,
		}).Debug("request rejected")
	}
	return false
}

func (g *Gateway) check(id entity.ID, caller entity.ConnID) string {
	if !g.IsHost() {
		return ReasonNotHost
	}
	var e *entity.Entity
	if g.lookup != nil {
		e = g.lookup.Get(id)
	}
	if e == nil {
		return ReasonNoEntity
	}
	if e.Owner == "" {
		return ReasonHostOwned
	}
	if caller == "" || e.Owner != caller {
		return ReasonOwnerMismatch
	}
	return ""
}

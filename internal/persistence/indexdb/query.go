package indexdb

import (
	"context"
	"database/sql"
	"strings"

	"citycore/internal/protocol"
	"citycore/internal/sim/world"
)

type BalanceRow struct {
	world.BalanceRow
	Online bool   `json:"online"`
	Tick   uint64 `json:"tick"`
}

type AuditFilter struct {
	Actor  string
	Action string
	Since  uint64
	Limit  int
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (s *SQLiteIndex) Zones(ctx context.Context) ([]protocol.ZoneState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT property_id,name,owner,owner_name,for_sale,price,last_paid,government FROM zone_owners ORDER BY property_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.ZoneState
	for rows.Next() {
		var (
			z               protocol.ZoneState
			owner, ownerNm  sql.NullString
			forSale, isGovt int
		)
		if err := rows.Scan(&z.PropertyID, &z.Name, &owner, &ownerNm, &forSale, &z.Price, &z.LastPaid, &isGovt); err != nil {
			return nil, err
		}
		z.Owner, z.OwnerName = owner.String, ownerNm.String
		z.ForSale, z.Government = forSale != 0, isGovt != 0
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Balances(ctx context.Context) ([]BalanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conn,name,balance,stone,online,tick FROM balances ORDER BY conn`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceRow
	for rows.Next() {
		var (
			b      BalanceRow
			online int
			tick   int64
		)
		if err := rows.Scan(&b.Conn, &b.Name, &b.Balance, &b.Stone, &online, &tick); err != nil {
			return nil, err
		}
		b.Online, b.Tick = online != 0, uint64(tick)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Audits returns matching entries newest first.
func (s *SQLiteIndex) Audits(ctx context.Context, f AuditFilter) ([]world.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Actor != "" {
		where = append(where, "actor=?")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		where = append(where, "action=?")
		args = append(args, f.Action)
	}
	if f.Since > 0 {
		where = append(where, "tick>=?")
		args = append(args, int64(f.Since))
	}
	q := `SELECT tick,actor,action,target,ok,code,reason FROM audits`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tick DESC, seq DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.AuditEntry
	for rows.Next() {
		var (
			a            world.AuditEntry
			tick, target int64
			ok           int
			code, reason sql.NullString
		)
		if err := rows.Scan(&tick, &a.Actor, &a.Action, &target, &ok, &code, &reason); err != nil {
			return nil, err
		}
		a.Tick, a.Target, a.OK = uint64(tick), uint64(target), ok != 0
		a.Code, a.Reason = code.String, reason.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// TickDigest returns the recorded digest for tick, or "" if it was never
// indexed.
func (s *SQLiteIndex) TickDigest(ctx context.Context, tick uint64) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE tick=?`, int64(tick)).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

package postgres

import (
	"context"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// GraphRepo implements GraphRepository using PostgreSQL.
type GraphRepo struct{ db *DB }

// NewGraphRepo constructs a social graph repository.
func NewGraphRepo(db *DB) *GraphRepo { return &GraphRepo{db: db} }

const blockedEitherWay = `
SELECT EXISTS (
  SELECT 1 FROM blocks
  WHERE (blocker_id=$1 AND blocked_id=$2) OR (blocker_id=$2 AND blocked_id=$1)
)`

// lockPair takes row locks on both user records in id order, so concurrent
// mutations of the same pair are serialized and cannot deadlock.
func lockPair(ctx context.Context, tx pgx.Tx, a, b uuid.UUID) error {
	k := model.NewPairKey(a, b)
	const q = `SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`
	rows, err := tx.Query(ctx, q, k.Lo, k.Hi)
	if err != nil {
		return err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if n != 2 {
		return errs.ErrUserNotFound
	}
	return nil
}

// AddRequest records a pending request from -> to.
func (r *GraphRepo) AddRequest(ctx context.Context, from, to uuid.UUID) error {
	return r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, from, to); err != nil {
			return err
		}
		var blocked bool
		if err := tx.QueryRow(ctx, blockedEitherWay, from, to).Scan(&blocked); err != nil {
			return err
		}
		if blocked {
			return errs.ErrAccessDenied
		}
		var connected bool
		const conn = `SELECT EXISTS (SELECT 1 FROM connections WHERE user_id=$1 AND peer_id=$2)`
		if err := tx.QueryRow(ctx, conn, from, to).Scan(&connected); err != nil {
			return err
		}
		if connected {
			return errs.ErrAlreadyConnected
		}
		const ins = `INSERT INTO connection_requests (target_id, requester_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
		tag, err := tx.Exec(ctx, ins, to, from)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrRequestPending
		}
		return nil
	})
}

// AcceptRequest consumes the pending request and connects both users in one transaction.
// The DELETE row count is the claim: a concurrent duplicate accept sees zero rows.
func (r *GraphRepo) AcceptRequest(ctx context.Context, user, requester uuid.UUID) error {
	return r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, user, requester); err != nil {
			return err
		}
		const del = `DELETE FROM connection_requests WHERE target_id=$1 AND requester_id=$2`
		tag, err := tx.Exec(ctx, del, user, requester)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNoPendingRequest
		}
		const ins = `INSERT INTO connections (user_id, peer_id) VALUES ($1,$2), ($2,$1) ON CONFLICT DO NOTHING`
		_, err = tx.Exec(ctx, ins, user, requester)
		return err
	})
}

// RemoveRequest drops the pending request requester -> target.
func (r *GraphRepo) RemoveRequest(ctx context.Context, target, requester uuid.UUID) error {
	const q = `DELETE FROM connection_requests WHERE target_id=$1 AND requester_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, target, requester)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNoPendingRequest
	}
	return nil
}

// RemoveConnection deletes both directions with a single statement.
func (r *GraphRepo) RemoveConnection(ctx context.Context, a, b uuid.UUID) error {
	const q = `DELETE FROM connections WHERE (user_id=$1 AND peer_id=$2) OR (user_id=$2 AND peer_id=$1)`
	tag, err := r.db.Pool.Exec(ctx, q, a, b)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotConnected
	}
	return nil
}

// Block records user -> target and severs every relationship of the pair.
func (r *GraphRepo) Block(ctx context.Context, user, target uuid.UUID) error {
	return r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, user, target); err != nil {
			return err
		}
		const ins = `INSERT INTO blocks (blocker_id, blocked_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
		tag, err := tx.Exec(ctx, ins, user, target)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrAlreadyBlocked
		}
		const delConn = `DELETE FROM connections WHERE (user_id=$1 AND peer_id=$2) OR (user_id=$2 AND peer_id=$1)`
		if _, err := tx.Exec(ctx, delConn, user, target); err != nil {
			return err
		}
		const delReq = `DELETE FROM connection_requests WHERE (target_id=$1 AND requester_id=$2) OR (target_id=$2 AND requester_id=$1)`
		_, err = tx.Exec(ctx, delReq, user, target)
		return err
	})
}

// Unblock removes user -> target.
func (r *GraphRepo) Unblock(ctx context.Context, user, target uuid.UUID) error {
	const q = `DELETE FROM blocks WHERE blocker_id=$1 AND blocked_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, user, target)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotBlocked
	}
	return nil
}

// IsBlocked checks both directions.
func (r *GraphRepo) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var blocked bool
	err := r.db.Pool.QueryRow(ctx, blockedEitherWay, a, b).Scan(&blocked)
	return blocked, err
}

// Connections lists user's connections in insertion order.
func (r *GraphRepo) Connections(ctx context.Context, user uuid.UUID) ([]model.UserRef, error) {
	const q = `
SELECT u.id, u.username FROM connections c
JOIN users u ON u.id = c.peer_id
WHERE c.user_id=$1 ORDER BY c.seq`
	return queryRefs(ctx, r.db.Pool, q, user)
}

// Requests lists pending requests addressed to user.
func (r *GraphRepo) Requests(ctx context.Context, user uuid.UUID) ([]model.UserRef, error) {
	const q = `
SELECT u.id, u.username FROM connection_requests cr
JOIN users u ON u.id = cr.requester_id
WHERE cr.target_id=$1 ORDER BY cr.seq`
	return queryRefs(ctx, r.db.Pool, q, user)
}

// Blocked lists users blocked by user.
func (r *GraphRepo) Blocked(ctx context.Context, user uuid.UUID) ([]model.UserRef, error) {
	const q = `
SELECT u.id, u.username FROM blocks b
JOIN users u ON u.id = b.blocked_id
WHERE b.blocker_id=$1 ORDER BY b.seq`
	return queryRefs(ctx, r.db.Pool, q, user)
}

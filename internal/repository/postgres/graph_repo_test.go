package postgres

import (
	"context"
	"testing"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

const lockPairSQL = `SELECT id FROM users WHERE id IN \(\$1, \$2\) ORDER BY id FOR UPDATE`

func expectLockPair(mock pgxmock.PgxPoolIface, a, b uuid.UUID) {
	k := model.NewPairKey(a, b)
	mock.ExpectQuery(lockPairSQL).
		WithArgs(k.Lo, k.Hi).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(k.Lo).AddRow(k.Hi))
}

func twoIDs() (uuid.UUID, uuid.UUID) {
	return uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
}

func TestGraphRepo_AddRequest(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewGraphRepo(db)
	ctx := context.Background()
	from, to := twoIDs()

	// ok
	mock.ExpectBegin()
	expectLockPair(mock, from, to)
	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM blocks`).WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM connections WHERE user_id=\$1 AND peer_id=\$2\)`).WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO connection_requests \(target_id, requester_id\) VALUES \(\$1,\$2\) ON CONFLICT DO NOTHING`).
		WithArgs(to, from).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, r.AddRequest(ctx, from, to))

	// duplicate
	mock.ExpectBegin()
	expectLockPair(mock, from, to)
	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM blocks`).WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM connections`).WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO connection_requests`).WithArgs(to, from).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()
	require.ErrorIs(t, r.AddRequest(ctx, from, to), errs.ErrRequestPending)

	// blocked
	mock.ExpectBegin()
	expectLockPair(mock, from, to)
	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM blocks`).WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()
	require.ErrorIs(t, r.AddRequest(ctx, from, to), errs.ErrAccessDenied)

	// already connected
	mock.ExpectBegin()
	expectLockPair(mock, from, to)
	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM blocks`).WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM connections`).WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()
	require.ErrorIs(t, r.AddRequest(ctx, from, to), errs.ErrAlreadyConnected)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepo_LockPair_MissingUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewGraphRepo(db)
	a, b := twoIDs()
	k := model.NewPairKey(a, b)

	mock.ExpectBegin()
	mock.ExpectQuery(lockPairSQL).WithArgs(k.Lo, k.Hi).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(k.Lo))
	mock.ExpectRollback()
	require.ErrorIs(t, r.Block(context.Background(), a, b), errs.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepo_AcceptRequest(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewGraphRepo(db)
	ctx := context.Background()
	user, requester := twoIDs()

	mock.ExpectBegin()
	expectLockPair(mock, user, requester)
	mock.ExpectExec(`DELETE FROM connection_requests WHERE target_id=\$1 AND requester_id=\$2`).
		WithArgs(user, requester).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO connections \(user_id, peer_id\) VALUES \(\$1,\$2\), \(\$2,\$1\)`).
		WithArgs(user, requester).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	require.NoError(t, r.AcceptRequest(ctx, user, requester))

	// second accept sees no pending row
	mock.ExpectBegin()
	expectLockPair(mock, user, requester)
	mock.ExpectExec(`DELETE FROM connection_requests WHERE target_id=\$1 AND requester_id=\$2`).
		WithArgs(user, requester).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()
	require.ErrorIs(t, r.AcceptRequest(ctx, user, requester), errs.ErrNoPendingRequest)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepo_Block_EvictsRelationships(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewGraphRepo(db)
	ctx := context.Background()
	user, target := twoIDs()

	mock.ExpectBegin()
	expectLockPair(mock, user, target)
	mock.ExpectExec(`INSERT INTO blocks \(blocker_id, blocked_id\) VALUES \(\$1,\$2\) ON CONFLICT DO NOTHING`).
		WithArgs(user, target).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM connections WHERE \(user_id=\$1 AND peer_id=\$2\) OR \(user_id=\$2 AND peer_id=\$1\)`).
		WithArgs(user, target).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM connection_requests WHERE \(target_id=\$1 AND requester_id=\$2\) OR \(target_id=\$2 AND requester_id=\$1\)`).
		WithArgs(user, target).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()
	require.NoError(t, r.Block(ctx, user, target))

	mock.ExpectBegin()
	expectLockPair(mock, user, target)
	mock.ExpectExec(`INSERT INTO blocks`).WithArgs(user, target).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()
	require.ErrorIs(t, r.Block(ctx, user, target), errs.ErrAlreadyBlocked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphRepo_SingleStatementOps(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewGraphRepo(db)
	ctx := context.Background()
	a, b := twoIDs()

	mock.ExpectExec(`DELETE FROM connection_requests WHERE target_id=\$1 AND requester_id=\$2`).
		WithArgs(a, b).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.RemoveRequest(ctx, a, b), errs.ErrNoPendingRequest)

	mock.ExpectExec(`DELETE FROM connections WHERE`).
		WithArgs(a, b).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	require.NoError(t, r.RemoveConnection(ctx, a, b))

	mock.ExpectExec(`DELETE FROM connections WHERE`).
		WithArgs(a, b).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.RemoveConnection(ctx, a, b), errs.ErrNotConnected)

	mock.ExpectExec(`DELETE FROM blocks WHERE blocker_id=\$1 AND blocked_id=\$2`).
		WithArgs(a, b).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Unblock(ctx, a, b), errs.ErrNotBlocked)

	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM blocks`).WithArgs(a, b).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	blocked, err := r.IsBlocked(ctx, a, b)
	require.NoError(t, err)
	require.True(t, blocked)

	mock.ExpectQuery(`SELECT u.id, u.username FROM connections c JOIN users u ON u.id = c.peer_id WHERE c.user_id=\$1 ORDER BY c.seq`).
		WithArgs(a).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).AddRow(b, "bob"))
	conns, err := r.Connections(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []model.UserRef{{ID: b, Username: "bob"}}, conns)

	require.NoError(t, mock.ExpectationsWereMet())
}

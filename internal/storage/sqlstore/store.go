// Package sqlstore implements the ledger storage contracts on database/sql.
// Owners carry the embedded copy as a JSON array column; the global copy is
// the funds table.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces"
	"github.com/sheikh-saqib/fund-ledger/internal/models"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the handle for health probes.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateOwner(ctx context.Context, owner models.Owner) error {
	funds := owner.Funds
	if funds == nil {
		funds = []models.Transaction{}
	}
	payload, err := json.Marshal(funds)
	if err != nil {
		return fmt.Errorf("encode embedded funds: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM owners WHERE id = ? LIMIT 1`), owner.ID).Scan(&exists)
	if err == nil {
		return interfaces.ErrOwnerExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check owner: %w", err)
	}

	const query = `INSERT INTO owners (id, name, funder_username, continent, first_login_complete, funds, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(query),
		owner.ID, owner.Name, owner.FunderUsername, owner.Continent, owner.FirstLoginComplete, string(payload), toMillis(owner.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

func (s *Store) GetOwner(ctx context.Context, ownerID string) (models.Owner, error) {
	return s.getOwner(ctx, s.db, ownerID, false)
}

func (s *Store) getOwner(ctx context.Context, q queryer, ownerID string, lock bool) (models.Owner, error) {
	query := `SELECT id, name, funder_username, continent, first_login_complete, funds, created_at
	FROM owners WHERE id = ?`
	if lock {
		query += s.dialect.LockRow
	}

	var (
		owner     models.Owner
		payload   []byte
		createdAt int64
	)
	err := q.QueryRowContext(ctx, s.dialect.rebind(query), ownerID).Scan(
		&owner.ID,
		&owner.Name,
		&owner.FunderUsername,
		&owner.Continent,
		&owner.FirstLoginComplete,
		&payload,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Owner{}, interfaces.ErrOwnerNotFound
	}
	if err != nil {
		return models.Owner{}, fmt.Errorf("select owner: %w", err)
	}
	owner.CreatedAt = fromMillis(createdAt)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &owner.Funds); err != nil {
			return models.Owner{}, fmt.Errorf("decode embedded funds: %w", err)
		}
	}
	if owner.Funds == nil {
		owner.Funds = []models.Transaction{}
	}
	return owner, nil
}

func (s *Store) UpdateProfile(ctx context.Context, ownerID, funderUsername, continent string) (models.Owner, error) {
	const query = `UPDATE owners SET funder_username = ?, continent = ?, first_login_complete = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), funderUsername, continent, true, ownerID)
	if err != nil {
		return models.Owner{}, fmt.Errorf("update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Owner{}, interfaces.ErrOwnerNotFound
	}
	return s.GetOwner(ctx, ownerID)
}

func (s *Store) ListOwnerIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM owners ORDER BY id`)
}

func (s *Store) ListFundOwnerIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT DISTINCT owner_id FROM funds ORDER BY owner_id`)
}

func (s *Store) listIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendFund pushes tx onto the owner's embedded list.
func (s *Store) AppendFund(ctx context.Context, ownerID string, tx models.Transaction) error {
	return s.inTx(ctx, func(dbTx *sql.Tx) error {
		return s.appendEmbedded(ctx, dbTx, ownerID, tx)
	})
}

// PullDestination compares at millisecond precision, the resolution of the
// funds table.
func (s *Store) PullDestination(ctx context.Context, ownerID, destination string, cutoff time.Time) ([]string, error) {
	limit := toMillis(cutoff)
	var removed []string
	err := s.inTx(ctx, func(dbTx *sql.Tx) error {
		var err error
		removed, err = s.pullEmbedded(ctx, dbTx, ownerID, func(tx models.Transaction) bool {
			return tx.Destination == destination && toMillis(tx.CreatedAt) <= limit
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Store) DeleteOwner(ctx context.Context, ownerID string) error {
	return s.deleteOwner(ctx, s.db, ownerID)
}

func (s *Store) deleteOwner(ctx context.Context, q queryer, ownerID string) error {
	res, err := q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM owners WHERE id = ?`), ownerID)
	if err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return interfaces.ErrOwnerNotFound
	}
	return nil
}

func (s *Store) appendEmbedded(ctx context.Context, dbTx *sql.Tx, ownerID string, tx models.Transaction) error {
	owner, err := s.getOwner(ctx, dbTx, ownerID, true)
	if err != nil {
		return err
	}
	return s.writeEmbedded(ctx, dbTx, ownerID, append(owner.Funds, tx))
}

// pullEmbedded rewrites the owner's embedded list without the entries
// matching drop and returns their ids.
func (s *Store) pullEmbedded(ctx context.Context, dbTx *sql.Tx, ownerID string, drop func(models.Transaction) bool) ([]string, error) {
	owner, err := s.getOwner(ctx, dbTx, ownerID, true)
	if err != nil {
		return nil, err
	}
	var removed []string
	kept := make([]models.Transaction, 0, len(owner.Funds))
	for _, tx := range owner.Funds {
		if drop(tx) {
			removed = append(removed, tx.ID)
			continue
		}
		kept = append(kept, tx)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	return removed, s.writeEmbedded(ctx, dbTx, ownerID, kept)
}

func (s *Store) writeEmbedded(ctx context.Context, dbTx *sql.Tx, ownerID string, funds []models.Transaction) error {
	payload, err := json.Marshal(funds)
	if err != nil {
		return fmt.Errorf("encode embedded funds: %w", err)
	}
	_, err = dbTx.ExecContext(ctx, s.dialect.rebind(`UPDATE owners SET funds = ? WHERE id = ?`), string(payload), ownerID)
	if err != nil {
		return fmt.Errorf("update embedded funds: %w", err)
	}
	return nil
}

func (s *Store) InsertFund(ctx context.Context, tx models.Transaction) error {
	return s.insertFund(ctx, s.db, tx)
}

func (s *Store) insertFund(ctx context.Context, q queryer, tx models.Transaction) error {
	const query = `INSERT INTO funds (id, owner_id, destination, funder_label, amount, currency, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, s.dialect.rebind(query),
		tx.ID, tx.OwnerID, tx.Destination, tx.FunderLabel, tx.Amount, tx.Currency, toMillis(tx.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert fund: %w", err)
	}
	return nil
}

func (s *Store) DeleteFund(ctx context.Context, transactionID string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM funds WHERE id = ?`), transactionID)
	return err
}

func (s *Store) ListFundsByOwner(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	const query = `SELECT id, owner_id, destination, funder_label, amount, currency, created_at
	FROM funds WHERE owner_id = ? ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funds []models.Transaction
	for rows.Next() {
		var (
			tx        models.Transaction
			createdAt int64
		)
		if err := rows.Scan(&tx.ID, &tx.OwnerID, &tx.Destination, &tx.FunderLabel, &tx.Amount, &tx.Currency, &createdAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = fromMillis(createdAt)
		funds = append(funds, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return funds, nil
}

func (s *Store) DeleteFunds(ctx context.Context, ownerID string, transactionIDs []string) (int, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(transactionIDs)+1)
	args = append(args, ownerID)
	for _, id := range transactionIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(transactionIDs)), ", ")
	return s.deleteFunds(ctx, s.db, `DELETE FROM funds WHERE owner_id = ? AND id IN (`+placeholders+`)`, args...)
}

func (s *Store) DeleteFundsByDestination(ctx context.Context, ownerID, destination string, cutoff time.Time) (int, error) {
	return s.deleteFunds(ctx, s.db, `DELETE FROM funds WHERE owner_id = ? AND destination = ? AND created_at <= ?`,
		ownerID, destination, toMillis(cutoff))
}

func (s *Store) DeleteFundsByOwner(ctx context.Context, ownerID string) (int, error) {
	return s.deleteFunds(ctx, s.db, `DELETE FROM funds WHERE owner_id = ?`, ownerID)
}

func (s *Store) deleteFunds(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	res, err := q.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete funds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PutIntent inserts intent or, when the id exists, records its pulled
// transaction ids.
func (s *Store) PutIntent(ctx context.Context, intent models.Intent) error {
	ids := intent.TransactionIDs
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode intent transaction ids: %w", err)
	}

	const query = `INSERT INTO ledger_intents (id, kind, owner_id, destination, transaction_id, transaction_ids, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET transaction_ids = excluded.transaction_ids`
	_, err = s.db.ExecContext(ctx, s.dialect.rebind(query),
		intent.ID, string(intent.Kind), intent.OwnerID, intent.Destination, intent.TransactionID, string(payload), toMillis(intent.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

func (s *Store) ClearIntent(ctx context.Context, intentID string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM ledger_intents WHERE id = ?`), intentID)
	return err
}

func (s *Store) PendingIntents(ctx context.Context, olderThan time.Time) ([]models.Intent, error) {
	const query = `SELECT id, kind, owner_id, destination, transaction_id, transaction_ids, created_at
	FROM ledger_intents WHERE created_at < ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), toMillis(olderThan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []models.Intent
	for rows.Next() {
		var (
			intent    models.Intent
			kind      string
			ids       []byte
			createdAt int64
		)
		if err := rows.Scan(&intent.ID, &kind, &intent.OwnerID, &intent.Destination, &intent.TransactionID, &ids, &createdAt); err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			if err := json.Unmarshal(ids, &intent.TransactionIDs); err != nil {
				return nil, fmt.Errorf("decode intent transaction ids: %w", err)
			}
		}
		intent.Kind = models.IntentKind(kind)
		intent.CreatedAt = fromMillis(createdAt)
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

// AppendAtomic writes both copies of tx inside one database transaction.
func (s *Store) AppendAtomic(ctx context.Context, tx models.Transaction) error {
	return s.inTx(ctx, func(dbTx *sql.Tx) error {
		if err := s.appendEmbedded(ctx, dbTx, tx.OwnerID, tx); err != nil {
			return err
		}
		return s.insertFund(ctx, dbTx, tx)
	})
}

func (s *Store) WipeDestinationAtomic(ctx context.Context, ownerID, destination string) (int, int, error) {
	var embedded, global int
	err := s.inTx(ctx, func(dbTx *sql.Tx) error {
		removed, err := s.pullEmbedded(ctx, dbTx, ownerID, func(tx models.Transaction) bool {
			return tx.Destination == destination
		})
		if err != nil {
			return err
		}
		embedded = len(removed)
		global, err = s.deleteFunds(ctx, dbTx, `DELETE FROM funds WHERE owner_id = ? AND destination = ?`, ownerID, destination)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return embedded, global, nil
}

// DeleteOwnerAtomic removes the global rows and then the owner record.
func (s *Store) DeleteOwnerAtomic(ctx context.Context, ownerID string) (int, error) {
	var global int
	err := s.inTx(ctx, func(dbTx *sql.Tx) error {
		var err error
		if global, err = s.deleteFunds(ctx, dbTx, `DELETE FROM funds WHERE owner_id = ?`, ownerID); err != nil {
			return err
		}
		return s.deleteOwner(ctx, dbTx, ownerID)
	})
	if err != nil {
		return 0, err
	}
	return global, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	if err = fn(dbTx); err != nil {
		return err
	}
	return dbTx.Commit()
}

var (
	_ interfaces.LedgerStore = (*Store)(nil)
	_ interfaces.AtomicStore = (*Store)(nil)
)

// Package storage implements the SQLite-backed transaction store. Every
// cascading label operation runs inside a single database transaction so
// readers only ever observe the pre- or post-cascade state.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"moneta/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// WAL lets the export worker read while the web process writes;
	// busy_timeout makes concurrent writers queue instead of failing
	// with SQLITE_BUSY.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SetClock overrides the clock used to resolve rolling filter windows.
// Intended for tests.
func (r *SQLiteRepository) SetClock(now func() time.Time) {
	r.now = now
}

// isUniqueViolation matches the UNIQUE constraint error reported by the
// modernc sqlite driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withTx runs fn inside a transaction, rolling back on any error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// filterClause translates a core.Filter into SQL conditions against the
// aliases t (transactions) and c (categories). The same clause backs the
// list view, the aggregation view and the month index so all three agree
// on what "matching" means.
func (r *SQLiteRepository) filterClause(f core.Filter) (string, []any) {
	conds := []string{"1=1"}
	var args []any

	if len(f.Categories) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.Categories)), ",")
		conds = append(conds, "c.name IN ("+ph+")")
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if len(f.Tags) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.Tags)), ",")
		conds = append(conds, `EXISTS (
			SELECT 1 FROM transaction_tags tt
			JOIN tags g ON g.id = tt.tag_id
			WHERE tt.transaction_id = t.id AND g.name IN (`+ph+"))")
		for _, tag := range f.Tags {
			args = append(args, tag)
		}
	}
	if from, to, ok := f.Range.Window(r.now()); ok {
		conds = append(conds, "t.occurred_on >= ? AND t.occurred_on < ?")
		args = append(args, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	return strings.Join(conds, " AND "), args
}

const transactionColumns = `t.id, t.description, t.amount_cents, t.kind, t.occurred_on, COALESCE(c.name, '')`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		tr   core.Transaction
		kind string
		day  string
	)
	if err := row.Scan(&tr.ID, &tr.Description, &tr.Amount.Cents, &kind, &day, &tr.Category); err != nil {
		return core.Transaction{}, err
	}
	tr.Kind = core.Kind(kind)
	d, err := core.ParseDate(day)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("corrupt occurred_on %q: %w", day, err)
	}
	tr.Date = d
	return tr, nil
}

// ensureCategoryTx registers a category if missing and returns its id.
func ensureCategoryTx(tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO categories (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("ensure category %q: %w", name, err)
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM categories WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup category %q: %w", name, err)
	}
	return id, nil
}

func ensureTagTx(tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("ensure tag %q: %w", name, err)
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup tag %q: %w", name, err)
	}
	return id, nil
}

// setTagsTx replaces the tag set of a transaction.
func setTagsTx(tx *sql.Tx, txnID int64, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM transaction_tags WHERE transaction_id = ?`, txnID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, tag := range tags {
		tagID, err := ensureTagTx(tx, tag)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO transaction_tags (transaction_id, tag_id) VALUES (?, ?)`, txnID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", tag, err)
		}
	}
	return nil
}

// pruneOrphanTagsTx drops tag rows no transaction references anymore, so
// a tag disappears when its last usage goes away.
func pruneOrphanTagsTx(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM transaction_tags)`); err != nil {
		return fmt.Errorf("prune orphan tags: %w", err)
	}
	return nil
}

// CreateTransaction inserts a transaction, registering its category and
// tags as needed, and returns the new id.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	var id int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var categoryID any
		if t.Category != "" {
			cid, err := ensureCategoryTx(tx, t.Category)
			if err != nil {
				return err
			}
			categoryID = cid
		}
		res, err := tx.Exec(
			`INSERT INTO transactions (description, amount_cents, kind, occurred_on, category_id) VALUES (?, ?, ?, ?, ?)`,
			t.Description, t.Amount.Cents, string(t.Kind), t.Date.String(), categoryID,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return setTagsTx(tx, id, t.Tags)
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"kind", string(t.Kind),
		"amount_cents", t.Amount.Cents,
		"category", t.Category)
	return id, nil
}

// GetTransaction returns a transaction with its tags.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t LEFT JOIN categories c ON c.id = t.category_id WHERE t.id = ?`, id)
	tr, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT g.name FROM tags g JOIN transaction_tags tt ON tt.tag_id = g.id WHERE tt.transaction_id = ? ORDER BY g.name`, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return core.Transaction{}, fmt.Errorf("scan tag: %w", err)
		}
		tr.Tags = append(tr.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return core.Transaction{}, fmt.Errorf("iterate tags: %w", err)
	}
	return tr, nil
}

// UpdateTransaction replaces every field of an existing transaction,
// including its whole tag set, and re-queues it for export.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var categoryID any
		if t.Category != "" {
			cid, err := ensureCategoryTx(tx, t.Category)
			if err != nil {
				return err
			}
			categoryID = cid
		}
		res, err := tx.Exec(
			`UPDATE transactions
			 SET description = ?, amount_cents = ?, kind = ?, occurred_on = ?, category_id = ?,
			     version = version + 1, sync_status = 'pending', updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			t.Description, t.Amount.Cents, string(t.Kind), t.Date.String(), categoryID, t.ID,
		)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
		}
		if err := setTagsTx(tx, t.ID, t.Tags); err != nil {
			return err
		}
		return pruneOrphanTagsTx(tx)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction updated", "id", t.ID)
	return nil
}

// DeleteTransaction removes a transaction and its tag links.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM transaction_tags WHERE transaction_id = ?`, id); err != nil {
			return fmt.Errorf("delete tag links: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
		}
		return pruneOrphanTagsTx(tx)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

// Page describes month-based pagination: each page shows one calendar
// month of matching transactions, newest month first.
type Page struct {
	Number int
	Count  int
	Month  string // YYYY-MM shown on this page, empty when nothing matches
}

// ListTransactions returns the transactions of the page-th matching month
// (1-based, clamped to the available months), newest day first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.Filter, page int) ([]core.Transaction, Page, error) {
	where, args := r.filterClause(f)

	months, err := r.matchingMonths(ctx, where, args)
	if err != nil {
		return nil, Page{}, err
	}
	if len(months) == 0 {
		return nil, Page{Number: 1, Count: 0}, nil
	}
	if page < 1 {
		page = 1
	}
	if page > len(months) {
		page = len(months)
	}
	month := months[page-1]
	pg := Page{Number: page, Count: len(months), Month: month}

	query := `SELECT ` + transactionColumns + `
		FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		WHERE ` + where + ` AND substr(t.occurred_on, 1, 7) = ?
		ORDER BY t.occurred_on DESC, t.id DESC`
	rows, err := r.db.QueryContext(ctx, query, append(append([]any{}, args...), month)...)
	if err != nil {
		return nil, Page{}, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, Page{}, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, Page{}, fmt.Errorf("iterate transactions: %w", err)
	}

	if err := r.attachTags(ctx, out); err != nil {
		return nil, Page{}, err
	}
	return out, pg, nil
}

func (r *SQLiteRepository) matchingMonths(ctx context.Context, where string, args []any) ([]string, error) {
	query := `SELECT DISTINCT substr(t.occurred_on, 1, 7) AS month
		FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		WHERE ` + where + ` ORDER BY month DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

// attachTags loads the tag sets for a batch of transactions in one query.
func (r *SQLiteRepository) attachTags(ctx context.Context, trs []core.Transaction) error {
	if len(trs) == 0 {
		return nil
	}
	byID := make(map[int64]*core.Transaction, len(trs))
	ph := make([]string, 0, len(trs))
	args := make([]any, 0, len(trs))
	for i := range trs {
		byID[trs[i].ID] = &trs[i]
		ph = append(ph, "?")
		args = append(args, trs[i].ID)
	}
	query := `SELECT tt.transaction_id, g.name
		FROM transaction_tags tt JOIN tags g ON g.id = tt.tag_id
		WHERE tt.transaction_id IN (` + strings.Join(ph, ",") + `) ORDER BY g.name`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("scan tag row: %w", err)
		}
		if tr := byID[id]; tr != nil {
			tr.Tags = append(tr.Tags, tag)
		}
	}
	return rows.Err()
}

// --- Taxonomy -----------------------------------------------------------

// AddCategory registers a category name. ErrConflict when it exists.
func (r *SQLiteRepository) AddCategory(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO categories (name) VALUES (?)`, name)
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %q: %w", name, core.ErrConflict)
	}
	slog.InfoContext(ctx, "Category added", "category", name)
	return nil
}

// CategoryExists reports whether a category is registered.
func (r *SQLiteRepository) CategoryExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("category exists: %w", err)
	}
	return true, nil
}

// TagExists reports whether any transaction carries the tag.
func (r *SQLiteRepository) TagExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tag exists: %w", err)
	}
	return true, nil
}

// RenameCategory renames the registry row. Transactions reference the
// category by id, so the label changes in place; the referencing rows
// are re-queued because their exported snapshot now renders differently.
func (r *SQLiteRepository) RenameCategory(ctx context.Context, oldName, newName string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := categoryIDTx(tx, oldName)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE categories SET name = ? WHERE id = ?`, newName, id); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("category %q: %w", newName, core.ErrConflict)
			}
			return fmt.Errorf("rename category: %w", err)
		}
		return requeueByCategory(tx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Category renamed", "from", oldName, "to", newName)
	return nil
}

// RenameTag renames a tag row, cascading to every referencing
// transaction through the join table.
func (r *SQLiteRepository) RenameTag(ctx context.Context, oldName, newName string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := tagIDTx(tx, oldName)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE tags SET name = ? WHERE id = ?`, newName, id); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("tag %q: %w", newName, core.ErrConflict)
			}
			return fmt.Errorf("rename tag: %w", err)
		}
		return requeueByTag(tx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Tag renamed", "from", oldName, "to", newName)
	return nil
}

// requeueByCategory marks every transaction in the category for
// re-export after a label change altered its rendered snapshot.
func requeueByCategory(tx *sql.Tx, categoryID int64) error {
	if _, err := tx.Exec(
		`UPDATE transactions SET sync_status = 'pending', version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE category_id = ?`, categoryID); err != nil {
		return fmt.Errorf("requeue transactions for export: %w", err)
	}
	return nil
}

// requeueByTag does the same for every transaction carrying the tag.
func requeueByTag(tx *sql.Tx, tagID int64) error {
	if _, err := tx.Exec(
		`UPDATE transactions SET sync_status = 'pending', version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id IN (SELECT transaction_id FROM transaction_tags WHERE tag_id = ?)`, tagID); err != nil {
		return fmt.Errorf("requeue transactions for export: %w", err)
	}
	return nil
}

// MergeCategories reassigns every transaction from source to target and
// drops source from the registry, atomically.
func (r *SQLiteRepository) MergeCategories(ctx context.Context, source, target string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		sourceID, err := categoryIDTx(tx, source)
		if err != nil {
			return err
		}
		targetID, err := categoryIDTx(tx, target)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE transactions SET category_id = ?, sync_status = 'pending', version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE category_id = ?`, targetID, sourceID); err != nil {
			return fmt.Errorf("reassign transactions: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM categories WHERE id = ?`, sourceID); err != nil {
			return fmt.Errorf("remove source category: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Categories merged", "source", source, "target", target)
	return nil
}

// MergeTags adds target to every transaction tagged source (where absent)
// and removes source, atomically.
func (r *SQLiteRepository) MergeTags(ctx context.Context, source, target string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		sourceID, err := tagIDTx(tx, source)
		if err != nil {
			return err
		}
		targetID, err := tagIDTx(tx, target)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO transaction_tags (transaction_id, tag_id)
			 SELECT transaction_id, ? FROM transaction_tags WHERE tag_id = ?`, targetID, sourceID); err != nil {
			return fmt.Errorf("retag transactions: %w", err)
		}
		// Requeue while the source links still exist; the exported rows
		// render the tag list.
		if err := requeueByTag(tx, sourceID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM transaction_tags WHERE tag_id = ?`, sourceID); err != nil {
			return fmt.Errorf("unlink source tag: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM tags WHERE id = ?`, sourceID); err != nil {
			return fmt.Errorf("remove source tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Tags merged", "source", source, "target", target)
	return nil
}

// DeleteCategory removes the category from the registry and clears it on
// every referencing transaction.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, name string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := categoryIDTx(tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE transactions SET category_id = NULL, sync_status = 'pending', version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE category_id = ?`, id); err != nil {
			return fmt.Errorf("clear category refs: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM categories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("remove category: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Category deleted", "category", name)
	return nil
}

// DeleteTag removes the tag from every referencing transaction.
func (r *SQLiteRepository) DeleteTag(ctx context.Context, name string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := tagIDTx(tx, name)
		if err != nil {
			return err
		}
		if err := requeueByTag(tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM transaction_tags WHERE tag_id = ?`, id); err != nil {
			return fmt.Errorf("unlink tag: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM tags WHERE id = ?`, id); err != nil {
			return fmt.Errorf("remove tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Tag deleted", "tag", name)
	return nil
}

func categoryIDTx(tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM categories WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("category %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup category %q: %w", name, err)
	}
	return id, nil
}

func tagIDTx(tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("tag %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup tag %q: %w", name, err)
	}
	return id, nil
}

// ListCategories returns every registered category, alphabetically.
// Transactions can only reference registered categories, so the registry
// already covers the in-use set.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	return r.listNames(ctx, `SELECT name FROM categories ORDER BY name`)
}

// ListTags returns every tag in use, alphabetically. Orphan rows are
// pruned on mutation, so the table is exactly the in-use set.
func (r *SQLiteRepository) ListTags(ctx context.Context) ([]string, error) {
	return r.listNames(ctx, `SELECT name FROM tags ORDER BY name`)
}

func (r *SQLiteRepository) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// --- Aggregation --------------------------------------------------------

// Summarize computes income, expense, net and count over the filtered set
// in one pass of integer-cent sums.
func (r *SQLiteRepository) Summarize(ctx context.Context, f core.Filter) (core.Summary, error) {
	where, args := r.filterClause(f)
	query := `SELECT
		COALESCE(SUM(CASE WHEN t.kind = 'income' THEN t.amount_cents ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.kind = 'expense' THEN t.amount_cents ELSE 0 END), 0),
		COUNT(*)
		FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		WHERE ` + where
	var s core.Summary
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.Income.Cents, &s.Expense.Cents, &s.Count); err != nil {
		return core.Summary{}, fmt.Errorf("summarize: %w", err)
	}
	s.Net = s.Income.Sub(s.Expense)
	return s, nil
}

// CategoryBreakdown returns per-category expense and income sums over the
// filtered set, largest expense first. Uncategorized transactions are
// bucketed under "uncategorized".
func (r *SQLiteRepository) CategoryBreakdown(ctx context.Context, f core.Filter) ([]core.CategoryBreakdown, error) {
	where, args := r.filterClause(f)
	query := `SELECT
		COALESCE(c.name, 'uncategorized'),
		COALESCE(SUM(CASE WHEN t.kind = 'expense' THEN t.amount_cents ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.kind = 'income' THEN t.amount_cents ELSE 0 END), 0)
		FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		WHERE ` + where + `
		GROUP BY COALESCE(c.name, 'uncategorized')
		ORDER BY 2 DESC, 1`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	defer rows.Close()
	var out []core.CategoryBreakdown
	for rows.Next() {
		var b core.CategoryBreakdown
		if err := rows.Scan(&b.Name, &b.Expense.Cents, &b.Income.Cents); err != nil {
			return nil, fmt.Errorf("scan category breakdown: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MonthlyBreakdown returns per-month expense and income sums over the
// filtered set, in chronological order.
func (r *SQLiteRepository) MonthlyBreakdown(ctx context.Context, f core.Filter) ([]core.MonthBreakdown, error) {
	where, args := r.filterClause(f)
	query := `SELECT
		substr(t.occurred_on, 1, 7) AS month,
		COALESCE(SUM(CASE WHEN t.kind = 'expense' THEN t.amount_cents ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.kind = 'income' THEN t.amount_cents ELSE 0 END), 0)
		FROM transactions t LEFT JOIN categories c ON c.id = t.category_id
		WHERE ` + where + `
		GROUP BY month
		ORDER BY month`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monthly breakdown: %w", err)
	}
	defer rows.Close()
	var out []core.MonthBreakdown
	for rows.Next() {
		var b core.MonthBreakdown
		if err := rows.Scan(&b.Month, &b.Expense.Cents, &b.Income.Cents); err != nil {
			return nil, fmt.Errorf("scan monthly breakdown: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Export queue -------------------------------------------------------

// PendingExport identifies a transaction waiting to be exported.
type PendingExport struct {
	ID      int64
	Version int64
}

// GetPendingExports returns transactions not yet exported, oldest first.
func (r *SQLiteRepository) GetPendingExports(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, version FROM transactions WHERE sync_status = 'pending' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	defer rows.Close()
	var out []PendingExport
	for rows.Next() {
		var p PendingExport
		if err := rows.Scan(&p.ID, &p.Version); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkExported records a successful export.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'synced', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as exported", "id", id)
	return nil
}

// MarkExportError flags a transaction whose export failed.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'error', updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with export error", "id", id)
	return nil
}

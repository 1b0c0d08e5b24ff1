// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/invoicly/invoicly/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим адресом почты.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvoiceNotFound возвращается, если инвойс не найден.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrTokenNotFound возвращается, если токен входа отсутствует, истёк или уже использован.
	ErrTokenNotFound = errors.New("login token not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Ретраи полезны для Serialization Failure и Deadlocks,
			// переподключением занимается сам pgxpool.
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя с указанным идентификатором и почтой.
func (r *PostgresRepository) CreateUser(ctx context.Context, id, email string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2)`,
		id, email,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail возвращает пользователя по адресу почты.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, name, address, created_at FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Address, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, name, address, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Address, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return &u, nil
}

// UpdateUserProfile сохраняет имя и адрес пользователя.
func (r *PostgresRepository) UpdateUserProfile(ctx context.Context, id, name, address string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $2, address = $3 WHERE id = $1`,
		id, name, address,
	)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateLoginToken сохраняет одноразовый токен входа для пользователя.
func (r *PostgresRepository) CreateLoginToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("create login token: %w", err)
	}
	return nil
}

// ConsumeLoginToken атомарно помечает токен использованным и возвращает
// идентификатор владельца. Истёкший или уже использованный токен считается
// отсутствующим.
func (r *PostgresRepository) ConsumeLoginToken(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := r.pool.QueryRow(ctx,
		`UPDATE login_tokens
		 SET used_at = $2
		 WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		 RETURNING user_id`,
		token, now,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("consume login token: %w", err)
	}
	return userID, nil
}

// CreateInvoice сохраняет новый инвойс.
func (r *PostgresRepository) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO invoices (
				id, user_id, invoice_name, invoice_number, currency,
				from_name, from_email, from_address,
				to_name, to_email, to_address,
				date, due, item_description, item_quantity, item_rate,
				tax_rate, note, total, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			inv.ID, inv.UserID, inv.InvoiceName, inv.InvoiceNumber, inv.Currency,
			inv.FromName, inv.FromEmail, inv.FromAddress,
			inv.ToName, inv.ToEmail, inv.ToAddress,
			inv.Date, inv.Due, inv.ItemDescription, inv.ItemQuantity, inv.ItemRate,
			inv.TaxRate, inv.Note, inv.Total, string(inv.Status),
		)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		return nil
	})
}

// GetInvoiceByID возвращает инвойс по идентификатору.
func (r *PostgresRepository) GetInvoiceByID(ctx context.Context, id string) (*model.Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, invoice_name, invoice_number, currency,
			from_name, from_email, from_address,
			to_name, to_email, to_address,
			date, due, item_description, item_quantity, item_rate,
			tax_rate, note, total, status, created_at
		 FROM invoices
		 WHERE id = $1`,
		id,
	)

	var inv model.Invoice
	var status string
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.InvoiceName, &inv.InvoiceNumber, &inv.Currency,
		&inv.FromName, &inv.FromEmail, &inv.FromAddress,
		&inv.ToName, &inv.ToEmail, &inv.ToAddress,
		&inv.Date, &inv.Due, &inv.ItemDescription, &inv.ItemQuantity, &inv.ItemRate,
		&inv.TaxRate, &inv.Note, &inv.Total, &status, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.Status = model.InvoiceStatus(status)

	return &inv, nil
}

// GetInvoicesByUser возвращает список инвойсов пользователя в сокращённом виде.
func (r *PostgresRepository) GetInvoicesByUser(ctx context.Context, userID string) ([]model.InvoiceSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, invoice_number, to_name, total, status, date, currency
		 FROM invoices
		 WHERE user_id = $1
		 ORDER BY date DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	var res []model.InvoiceSummary
	for rows.Next() {
		var s model.InvoiceSummary
		var status string
		if err := rows.Scan(&s.ID, &s.InvoiceNumber, &s.ToName, &s.Total, &status, &s.Date, &s.Currency); err != nil {
			return nil, fmt.Errorf("scan invoice summary: %w", err)
		}
		s.Status = model.InvoiceStatus(status)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteInvoice удаляет инвойс по идентификатору.
func (r *PostgresRepository) DeleteInvoice(ctx context.Context, id string) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrInvoiceNotFound
		}
		return nil
	})
}

// SetInvoiceStatus устанавливает статус инвойса.
func (r *PostgresRepository) SetInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE invoices SET status = $2 WHERE id = $1`,
			id, string(status),
		)
		if err != nil {
			return fmt.Errorf("update invoice status: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrInvoiceNotFound
		}
		return nil
	})
}

// InvoiceRevenue содержит дату выставления и итог инвойса для ряда выручки.
type InvoiceRevenue struct {
	Date  time.Time
	Total float64
}

// GetInvoicesForRevenue возвращает даты и итоги инвойсов пользователя в окне
// [start, end]. Если includePending равен false, учитываются только оплаченные.
func (r *PostgresRepository) GetInvoicesForRevenue(ctx context.Context, userID string, start, end time.Time, includePending bool) ([]InvoiceRevenue, error) {
	query := `SELECT date, total
		 FROM invoices
		 WHERE user_id = $1 AND date BETWEEN $2 AND $3`
	args := []any{userID, start, end}

	if !includePending {
		query += ` AND status = $4`
		args = append(args, string(model.InvoiceStatusPaid))
	}
	query += ` ORDER BY date`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select invoices for revenue: %w", err)
	}
	defer rows.Close()

	var res []InvoiceRevenue
	for rows.Next() {
		var ir InvoiceRevenue
		if err := rows.Scan(&ir.Date, &ir.Total); err != nil {
			return nil, fmt.Errorf("scan invoice revenue: %w", err)
		}
		res = append(res, ir)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetDashboard возвращает агрегированные показатели по всем инвойсам пользователя.
func (r *PostgresRepository) GetDashboard(ctx context.Context, userID string) (*model.DashboardSummary, error) {
	var d model.DashboardSummary
	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(total), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		 FROM invoices
		 WHERE user_id = $1`,
		userID,
		string(model.InvoiceStatusPaid),
		string(model.InvoiceStatusPending),
	).Scan(&d.TotalRevenue, &d.TotalInvoices, &d.TotalPaidInvoices, &d.TotalOpenInvoices)
	if err != nil {
		return nil, fmt.Errorf("dashboard aggregates: %w", err)
	}

	return &d, nil
}

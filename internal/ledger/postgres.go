package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fiscal-credits/creditledger/internal/ingestion"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/logger"
	"github.com/fiscal-credits/creditledger/pkg/postgres"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE Postgres reports for a unique index clash.
const uniqueViolation = "23505"

const selectColumns = `id, numero_credito, numero_nfse, data_constituicao, valor_issqn, tipo_credito,
	simples_nacional, aliquota, valor_faturado, valor_deducao, base_calculo`

// PostgresStore keeps credits in the credito table. Every call runs as its own
// statement or transaction on the shared pool, so concurrent callers never
// share transaction state.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore wraps an open Postgres client.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.WithComponent("ledger-postgres"),
	}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying credito schema: %w", err)
	}
	s.logger.Info("credito schema applied")
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec ingestion.CreditRecord) (ingestion.CreditRecord, error) {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO credito (numero_credito, numero_nfse, data_constituicao, valor_issqn, tipo_credito,
			simples_nacional, aliquota, valor_faturado, valor_deducao, base_calculo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
			rec.CreditNumber, rec.InvoiceNumber, rec.ConstitutionDate, rec.TaxAmount, rec.CreditType,
			rec.IsSimplifiedRegime, rec.Rate, rec.BilledAmount, rec.DeductionAmount, rec.CalculationBase,
		).Scan(&rec.ID)
	})
	if err != nil {
		return ingestion.CreditRecord{}, writeError(err, "inserting credit %s", rec.CreditNumber)
	}
	s.logger.Debug("credit inserted", "credit_number", rec.CreditNumber, "id", rec.ID)
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec ingestion.CreditRecord) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE credito SET numero_credito = $2, numero_nfse = $3, data_constituicao = $4, valor_issqn = $5,
			tipo_credito = $6, simples_nacional = $7, aliquota = $8, valor_faturado = $9,
			valor_deducao = $10, base_calculo = $11
		WHERE id = $1`,
		rec.ID, rec.CreditNumber, rec.InvoiceNumber, rec.ConstitutionDate, rec.TaxAmount, rec.CreditType,
		rec.IsSimplifiedRegime, rec.Rate, rec.BilledAmount, rec.DeductionAmount, rec.CalculationBase,
	)
	if err != nil {
		return writeError(err, "updating credit %d", rec.ID)
	}
	return requireAffected(res, rec.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, rec ingestion.CreditRecord) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM credito WHERE id = $1`, rec.ID)
	if err != nil {
		return writeError(err, "deleting credit %s", rec.CreditNumber)
	}
	return requireAffected(res, rec.ID)
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (ingestion.CreditRecord, error) {
	row := s.db.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM credito WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return ingestion.CreditRecord{}, readError(err, "fetching credit %d", id)
	}
	return rec, nil
}

func (s *PostgresStore) GetByCreditNumber(ctx context.Context, creditNumber string) (ingestion.CreditRecord, error) {
	if creditNumber == "" {
		return ingestion.CreditRecord{}, apperrors.ErrNotFound
	}
	row := s.db.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM credito WHERE numero_credito = $1`, creditNumber)
	rec, err := scanRecord(row)
	if err != nil {
		return ingestion.CreditRecord{}, readError(err, "fetching credit %s", creditNumber)
	}
	return rec, nil
}

func (s *PostgresStore) ListByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]ingestion.CreditRecord, error) {
	records := []ingestion.CreditRecord{}
	if invoiceNumber == "" {
		return records, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM credito WHERE numero_nfse = $1 ORDER BY id`, invoiceNumber)
	if err != nil {
		return nil, readError(err, "listing credits for invoice %s", invoiceNumber)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, readError(err, "scanning credit for invoice %s", invoiceNumber)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, readError(err, "iterating credits for invoice %s", invoiceNumber)
	}
	return records, nil
}

func (s *PostgresStore) ExistsByCreditNumber(ctx context.Context, creditNumber string) (bool, error) {
	if creditNumber == "" {
		return false, nil
	}
	var exists bool
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credito WHERE numero_credito = $1)`, creditNumber).Scan(&exists)
	if err != nil {
		return false, readError(err, "checking credit %s", creditNumber)
	}
	return exists, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ingestion.CreditRecord, error) {
	var rec ingestion.CreditRecord
	err := row.Scan(
		&rec.ID, &rec.CreditNumber, &rec.InvoiceNumber, &rec.ConstitutionDate, &rec.TaxAmount, &rec.CreditType,
		&rec.IsSimplifiedRegime, &rec.Rate, &rec.BilledAmount, &rec.DeductionAmount, &rec.CalculationBase,
	)
	return rec, err
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, err, "reading affected rows for credit %d", id)
	}
	if n == 0 {
		return fmt.Errorf("credit %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func writeError(err error, format string, args ...any) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		err = fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, pqErr.Message)
	}
	return apperrors.Wrap(apperrors.ErrStoreWrite, err, format, args...)
}

func readError(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, apperrors.ErrNotFound)...)
	}
	return apperrors.Wrap(apperrors.ErrStoreRead, err, format, args...)
}

package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boltdb/bolt"
	"github.com/fiscal-credits/creditledger/internal/ingestion"
	apperrors "github.com/fiscal-credits/creditledger/pkg/errors"
	"github.com/fiscal-credits/creditledger/pkg/logger"
)

var (
	creditsBucket       = []byte("credito")
	creditNumberBucket  = []byte("credito_numero_credito")
	invoiceNumberBucket = []byte("credito_numero_nfse")
)

// BoltStore keeps credits in a single BoltDB file. Records live under their
// big-endian ID; two index buckets map credit number to ID (unique) and
// invoice number + ID to nothing (non-unique). Bolt serialises writers, so
// the uniqueness check and the insert happen atomically.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{creditsBucket, creditNumberBucket, invoiceNumberBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bolt buckets: %w", err)
	}
	return &BoltStore{
		db:     db,
		logger: logger.WithComponent("ledger-bolt"),
	}, nil
}

func (s *BoltStore) Insert(ctx context.Context, rec ingestion.CreditRecord) (ingestion.CreditRecord, error) {
	if err := ctx.Err(); err != nil {
		return ingestion.CreditRecord{}, apperrors.Wrap(apperrors.ErrStoreWrite, err, "inserting credit %s", rec.CreditNumber)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(creditNumberBucket).Get([]byte(rec.CreditNumber)) != nil {
			return fmt.Errorf("numero_credito %q: %w", rec.CreditNumber, apperrors.ErrAlreadyExists)
		}
		seq, err := tx.Bucket(creditsBucket).NextSequence()
		if err != nil {
			return err
		}
		rec.ID = int64(seq)
		return putRecord(tx, rec)
	})
	if err != nil {
		return ingestion.CreditRecord{}, apperrors.Wrap(apperrors.ErrStoreWrite, err, "inserting credit %s", rec.CreditNumber)
	}
	s.logger.Debug("credit inserted", "credit_number", rec.CreditNumber, "id", rec.ID)
	return rec, nil
}

func (s *BoltStore) Update(ctx context.Context, rec ingestion.CreditRecord) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, err, "updating credit %d", rec.ID)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		old, err := getRecord(tx, rec.ID)
		if err != nil {
			return err
		}
		if old.CreditNumber != rec.CreditNumber && tx.Bucket(creditNumberBucket).Get([]byte(rec.CreditNumber)) != nil {
			return fmt.Errorf("numero_credito %q: %w", rec.CreditNumber, apperrors.ErrAlreadyExists)
		}
		if err := deleteRecord(tx, old); err != nil {
			return err
		}
		return putRecord(tx, rec)
	})
	return boltWriteError(err, "updating credit %d", rec.ID)
}

func (s *BoltStore) Delete(ctx context.Context, rec ingestion.CreditRecord) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreWrite, err, "deleting credit %s", rec.CreditNumber)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		stored, err := getRecord(tx, rec.ID)
		if err != nil {
			return err
		}
		return deleteRecord(tx, stored)
	})
	return boltWriteError(err, "deleting credit %s", rec.CreditNumber)
}

func (s *BoltStore) GetByID(ctx context.Context, id int64) (ingestion.CreditRecord, error) {
	var rec ingestion.CreditRecord
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	if err != nil {
		return ingestion.CreditRecord{}, boltReadError(err, "fetching credit %d", id)
	}
	return rec, nil
}

func (s *BoltStore) GetByCreditNumber(ctx context.Context, creditNumber string) (ingestion.CreditRecord, error) {
	if creditNumber == "" {
		return ingestion.CreditRecord{}, apperrors.ErrNotFound
	}
	var rec ingestion.CreditRecord
	err := s.view(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(creditNumberBucket).Get([]byte(creditNumber))
		if id == nil {
			return apperrors.ErrNotFound
		}
		var err error
		rec, err = getRecord(tx, btoi(id))
		return err
	})
	if err != nil {
		return ingestion.CreditRecord{}, boltReadError(err, "fetching credit %s", creditNumber)
	}
	return rec, nil
}

func (s *BoltStore) ListByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]ingestion.CreditRecord, error) {
	records := []ingestion.CreditRecord{}
	if invoiceNumber == "" {
		return records, nil
	}
	prefix := invoicePrefix(invoiceNumber)
	err := s.view(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(invoiceNumberBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			rec, err := getRecord(tx, btoi(k[len(prefix):]))
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, boltReadError(err, "listing credits for invoice %s", invoiceNumber)
	}
	return records, nil
}

func (s *BoltStore) ExistsByCreditNumber(ctx context.Context, creditNumber string) (bool, error) {
	if creditNumber == "" {
		return false, nil
	}
	var exists bool
	err := s.view(ctx, func(tx *bolt.Tx) error {
		exists = tx.Bucket(creditNumberBucket).Get([]byte(creditNumber)) != nil
		return nil
	})
	if err != nil {
		return false, boltReadError(err, "checking credit %s", creditNumber)
	}
	return exists, nil
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.view(ctx, func(tx *bolt.Tx) error { return nil })
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func putRecord(tx *bolt.Tx, rec ingestion.CreditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding credit %s: %w", rec.CreditNumber, err)
	}
	id := itob(rec.ID)
	if err := tx.Bucket(creditsBucket).Put(id, data); err != nil {
		return err
	}
	if err := tx.Bucket(creditNumberBucket).Put([]byte(rec.CreditNumber), id); err != nil {
		return err
	}
	return tx.Bucket(invoiceNumberBucket).Put(append(invoicePrefix(rec.InvoiceNumber), id...), []byte{})
}

func deleteRecord(tx *bolt.Tx, rec ingestion.CreditRecord) error {
	id := itob(rec.ID)
	if err := tx.Bucket(creditsBucket).Delete(id); err != nil {
		return err
	}
	if err := tx.Bucket(creditNumberBucket).Delete([]byte(rec.CreditNumber)); err != nil {
		return err
	}
	return tx.Bucket(invoiceNumberBucket).Delete(append(invoicePrefix(rec.InvoiceNumber), id...))
}

func getRecord(tx *bolt.Tx, id int64) (ingestion.CreditRecord, error) {
	var rec ingestion.CreditRecord
	data := tx.Bucket(creditsBucket).Get(itob(id))
	if data == nil {
		return rec, fmt.Errorf("credit id %d: %w", id, apperrors.ErrNotFound)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decoding credit id %d: %w", id, err)
	}
	return rec, nil
}

// invoicePrefix terminates the invoice number with a zero byte so "12" does
// not match keys of invoice "123".
func invoicePrefix(invoiceNumber string) []byte {
	return append([]byte(invoiceNumber), 0)
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func boltWriteError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	return apperrors.Wrap(apperrors.ErrStoreWrite, err, format, args...)
}

func boltReadError(err error, format string, args ...any) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	return apperrors.Wrap(apperrors.ErrStoreRead, err, format, args...)
}

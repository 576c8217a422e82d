package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Transfer direction and outcome values recorded in the log.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"

	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TransferRecord captures one finished transfer operation.
type TransferRecord struct {
	OpID       string `json:"op_id"`
	FileID     int    `json:"file_id"`
	FileName   string `json:"file_name"`
	Direction  string `json:"direction"`
	Bytes      int64  `json:"bytes"`
	Chunks     int    `json:"chunks"`
	Status     string `json:"status"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
}

// Store wraps BadgerDB for the transfer history log.
type Store struct {
	db *badger.DB
}

var keyPrefix = []byte("transfer:")

// Open opens (or creates) the history database at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutTransfer stores a transfer record.
func (s *Store) PutTransfer(rec TransferRecord) error {
	key := append(append([]byte{}, keyPrefix...), rec.OpID...)
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// GetTransfer retrieves a transfer record by operation ID.
func (s *Store) GetTransfer(opID string) (TransferRecord, error) {
	key := append(append([]byte{}, keyPrefix...), opID...)
	var rec TransferRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("no transfer record for %s", opID)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// ListTransfers returns all records, oldest first.
func (s *Store) ListTransfers() ([]TransferRecord, error) {
	var records []TransferRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec TransferRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt < records[j].StartedAt
	})
	return records, nil
}

// NewTransferRecord builds a record for an operation finishing now.
func NewTransferRecord(opID string, fileID int, fileName, direction, status string, bytes int64, chunks int, startedAt time.Time) TransferRecord {
	return TransferRecord{
		OpID:       opID,
		FileID:     fileID,
		FileName:   fileName,
		Direction:  direction,
		Bytes:      bytes,
		Chunks:     chunks,
		Status:     status,
		StartedAt:  startedAt.Unix(),
		FinishedAt: time.Now().Unix(),
	}
}

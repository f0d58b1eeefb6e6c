package metadata

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"
)

var ErrNotFound = errors.New("offer record not found")

// OfferRecord describes one offer from upload to its final outcome.
type OfferRecord struct {
	Code         int       `json:"code"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	DetectedType string    `json:"detected_type"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"` // BLAKE2b-256, hex
	Outcome      string    `json:"outcome,omitempty"`
	BytesSent    int64     `json:"bytes_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewOfferRecord builds the record of a fresh upload. The declared content
// type comes from the upload; the detected one is sniffed from the bytes.
func NewOfferRecord(code int, fileName, contentType string, content []byte) OfferRecord {
	sum := blake2b.Sum256(content)
	now := time.Now().UTC()
	return OfferRecord{
		Code:         code,
		FileName:     fileName,
		ContentType:  contentType,
		DetectedType: mimetype.Detect(content).String(),
		Size:         int64(len(content)),
		Checksum:     hex.EncodeToString(sum[:]),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// OfferStore wraps BadgerDB for offer records.
type OfferStore struct {
	db *badger.DB
}

// OpenOfferStore opens (or creates) a BadgerDB at the given path. An empty
// path keeps the journal in memory only.
func OpenOfferStore(dbPath string) (*OfferStore, error) {
	opts := badger.DefaultOptions(dbPath).WithLogger(nil)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &OfferStore{db: db}, nil
}

// Close closes the BadgerDB.
func (s *OfferStore) Close() error {
	return s.db.Close()
}

func offerKey(code int) []byte {
	return []byte("offer:" + strconv.Itoa(code))
}

// Put stores rec, replacing the record of any earlier offer on the same code.
func (s *OfferStore) Put(rec OfferRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(offerKey(rec.Code), val)
	})
}

func (s *OfferStore) Get(code int) (OfferRecord, error) {
	var rec OfferRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, code)
		return err
	})
	return rec, err
}

// Finish records the outcome of the offer on code.
func (s *OfferStore) Finish(code int, outcome string, bytesSent int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, code)
		if err != nil {
			return err
		}
		rec.Outcome = outcome
		rec.BytesSent = bytesSent
		rec.UpdatedAt = time.Now().UTC()

		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(offerKey(code), val)
	})
}

func getRecord(txn *badger.Txn, code int) (OfferRecord, error) {
	var rec OfferRecord
	item, err := txn.Get(offerKey(code))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, fmt.Errorf("%w: %d", ErrNotFound, code)
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

package ingest

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketIngest = []byte("ingest")
	keyLastSeq   = []byte("last_seq")
)

// Checkpoint persists the last stream sequence the ingestor has fully
// processed so a restart resumes from its cursor instead of replaying the
// node's whole retained history.
type Checkpoint struct {
	db *bolt.DB
}

// OpenCheckpoint initialises (and migrates) the BoltDB-backed checkpoint.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIngest)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Checkpoint{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (c *Checkpoint) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Last returns the highest processed sequence, zero when nothing has been
// processed yet.
func (c *Checkpoint) Last() (uint64, error) {
	if c == nil || c.db == nil {
		return 0, nil
	}
	var seq uint64
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketIngest).Get(keyLastSeq)
		if len(raw) == 8 {
			seq = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Save records seq as processed. Older sequences are ignored so replays
// never move the cursor backwards.
func (c *Checkpoint) Save(seq uint64) error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIngest)
		raw := bucket.Get(keyLastSeq)
		if len(raw) == 8 && binary.BigEndian.Uint64(raw) >= seq {
			return nil
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, seq)
		return bucket.Put(keyLastSeq, buf)
	})
}

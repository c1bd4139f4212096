package cache

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

const journalBucket = "entries"

// Journal records merged entries between cache saves so a crash loses no
// fetched items.
type Journal interface {
	Append(e Entry) error
	Replay(fn func(Entry) error) error
	Reset() error
	// Discard drops the entries numbered above after.
	Discard(after int) error
	Close() error
}

// BoltJournal is a Journal backed by a bbolt file next to the cache.
type BoltJournal struct {
	db *bolt.DB
}

// OpenBoltJournal opens (creating if needed) the journal at path.
func OpenBoltJournal(path string) (*BoltJournal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &BoltJournal{db: db}, nil
}

func journalKey(n int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(n))
	return key
}

// Append stores e keyed by its number.
func (j *BoltJournal) Append(e Entry) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(journalBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return bucket.Put(journalKey(e.Number), data)
	})
}

// Replay calls fn for every journaled entry in number order.
func (j *BoltJournal) Replay(fn func(Entry) error) error {
	return j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(journalBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			e.Number = int(binary.BigEndian.Uint64(k))
			return fn(e)
		})
	})
}

// Reset drops every journaled entry.
func (j *BoltJournal) Reset() error {
	return j.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(journalBucket)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(journalBucket))
	})
}

// Discard drops every journaled entry numbered above after.
func (j *BoltJournal) Discard(after int) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(journalBucket))
		if bucket == nil {
			return nil
		}
		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.Seek(journalKey(after + 1)); k != nil; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying file lock.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

// internal/store/store.go
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/wecassidy/T564/internal/t564"
)

const (
	bucketFrames   = "frames"
	bucketChannels = "channels"
)

// Store persists the controller's observational mirrors (frame snapshots
// and last-known channel settings) in a bbolt file so they survive a
// service restart. The store is write-through only: the controller never
// reads it in place of a device query.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the mirror database at path and ensures both
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open mirror db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketFrames, bucketChannels} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create mirror buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func frameKey(index int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(index))
	return b
}

// PutFrame stores one frame snapshot under its index.
func (s *Store) PutFrame(index int, snap t564.FrameSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", index, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketFrames)).Put(frameKey(index), payload)
	})
}

// DropFrames removes every persisted frame snapshot.
func (s *Store) DropFrames() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketFrames)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketFrames))
		return err
	})
}

// Frames loads the full persisted frame mirror.
func (s *Store) Frames() (map[int]t564.FrameSnapshot, error) {
	out := make(map[int]t564.FrameSnapshot)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketFrames)).ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("malformed frame key %x", k)
			}
			var snap t564.FrameSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("decode frame %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out[int(binary.BigEndian.Uint64(k))] = snap
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutChannel stores the last-known settings of one channel.
func (s *Store) PutChannel(settings t564.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode channel %s: %w", settings.Channel, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketChannels)).Put([]byte(settings.Channel), payload)
	})
}

// Channels loads the persisted channel mirrors keyed by channel ID.
func (s *Store) Channels() (map[t564.ChannelID]t564.Settings, error) {
	out := make(map[t564.ChannelID]t564.Settings)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketChannels)).ForEach(func(k, v []byte) error {
			var settings t564.Settings
			if err := json.Unmarshal(v, &settings); err != nil {
				return fmt.Errorf("decode channel %s: %w", k, err)
			}
			out[t564.ChannelID(k)] = settings
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

package consensus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"

	"github.com/MiguelVN7/Mini-Blockchain/core"
)

// Commit keys are this prefix followed by a big-endian sequence number, so
// they sort in append order.
var commitPrefix = []byte("commit/")

// PebbleStore keeps zstd compressed JSON values in a Pebble database. Every
// Save is a single synced batch.
type PebbleStore struct {
	db      *pebble.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	nextSeq uint64
	log     *log.Logger
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 << 20),
		MemTableSize: 4 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	s := &PebbleStore{
		db:      db,
		encoder: encoder,
		decoder: decoder,
		log:     core.NewLogger("store", "pebble"),
	}

	last, err := s.lastSeq()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.nextSeq = last + 1
	s.log.Printf("opened %s, %d commit(s)\n", path, last)

	return s, nil
}

func (s *PebbleStore) Load() (*Snapshot, error) {
	value, err := s.get([]byte(stateKey))
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{}
	if value == nil {
		return snap, nil
	}
	if err := json.Unmarshal(value, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStateFile, err)
	}
	return snap, nil
}

func (s *PebbleStore) Save(snap *Snapshot, commits ...Commit) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	buf, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := batch.Set([]byte(stateKey), s.encoder.EncodeAll(buf, nil), nil); err != nil {
		return err
	}

	seq := s.nextSeq
	for _, c := range commits {
		buf, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := batch.Set(commitKey(seq), s.encoder.EncodeAll(buf, nil), nil); err != nil {
			return err
		}
		seq++
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	s.nextSeq = seq
	return nil
}

func (s *PebbleStore) Commits(limit int) ([]Commit, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: commitPrefix,
		UpperBound: prefixUpperBound(commitPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	commits := []Commit{}
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(commits) >= limit {
			break
		}
		raw, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}
		value, err := s.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, err
		}
		var c Commit
		if err := json.Unmarshal(value, &c); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, iter.Error()
}

func (s *PebbleStore) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

// get returns the decompressed value for key, or nil if it does not exist.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// DecodeAll copies, so value may be released afterwards.
	return s.decoder.DecodeAll(value, nil)
}

// lastSeq returns the sequence number of the newest commit, 0 if none.
func (s *PebbleStore) lastSeq() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: commitPrefix,
		UpperBound: prefixUpperBound(commitPrefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	return binary.BigEndian.Uint64(key[len(commitPrefix):]), nil
}

func commitKey(seq uint64) []byte {
	key := make([]byte, len(commitPrefix)+8)
	copy(key, commitPrefix)
	binary.BigEndian.PutUint64(key[len(commitPrefix):], seq)
	return key
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Returns nil if prefix is all 0xFF.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}
	return nil
}

package store

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

type level struct {
	db *leveldb.DB
}

// NewLevelDB opens or creates a LevelDB-backed KV at the given path.
func NewLevelDB(path string) (KV, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb at %s", path)
	}

	return &level{db: db}, nil
}

func (s *level) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}

	return value, err
}

func (s *level) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *level) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *level) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

func (s *level) Close() error {
	return s.db.Close()
}

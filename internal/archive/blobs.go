// internal/archive/blobs.go
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"precursor/internal/errors"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrBlobNotFound = stderrors.New("blob not found")
	ErrInvalidHash  = stderrors.New("invalid content hash")
)

// BlobMeta stores metadata about a stored blob
type BlobMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// BlobStore keeps deduplicated text content keyed by its sha256
type BlobStore struct {
	db    *badger.DB
	cache *lru.Cache[string, []byte]
	codec *compressor
	now   func() time.Time
}

func newBlobStore(db *badger.DB, cacheSize int, copts CompressionOptions) (*BlobStore, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	codec, err := newCompressor(copts)
	if err != nil {
		return nil, err
	}

	return &BlobStore{
		db:    db,
		cache: cache,
		codec: codec,
		now:   time.Now,
	}, nil
}

// Put stores content, or adds a reference if it is already present, and
// returns its hash
func (b *BlobStore) Put(content []byte) (string, error) {
	hash := hashContent(content)

	err := b.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, hash)
		if err == nil {
			meta.RefCount++
			return setMeta(txn, meta)
		}
		if err != ErrBlobNotFound {
			return err
		}

		stored, compressed := b.codec.compress(content)
		if err := txn.Set(dataKey(hash), stored); err != nil {
			return err
		}
		return setMeta(txn, BlobMeta{
			Hash:       hash,
			Size:       int64(len(content)),
			StoredSize: int64(len(stored)),
			RefCount:   1,
			Compressed: compressed,
			CreatedAt:  b.now(),
		})
	})
	if err != nil {
		return "", fmt.Errorf("storing blob: %w", err)
	}

	b.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash
func (b *BlobStore) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, errors.ValidationError(ErrInvalidHash.Error(), hash)
	}
	if content, ok := b.cache.Get(hash); ok {
		return content, nil
	}

	var (
		meta BlobMeta
		data []byte
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		if meta, err = getMeta(txn, hash); err != nil {
			return err
		}
		item, err := txn.Get(dataKey(hash))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == ErrBlobNotFound || err == badger.ErrKeyNotFound {
		return nil, errors.NotFound(fmt.Sprintf("blob %s not found", hash))
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}

	if meta.Compressed {
		if data, err = b.codec.decompress(data); err != nil {
			return nil, err
		}
	}
	if hashContent(data) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}

	b.cache.Add(hash, data)
	return data, nil
}

// Meta returns the metadata for hash
func (b *BlobStore) Meta(hash string) (BlobMeta, error) {
	var meta BlobMeta
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = getMeta(txn, hash)
		return err
	})
	if err == ErrBlobNotFound {
		return meta, errors.NotFound(fmt.Sprintf("blob %s not found", hash))
	}
	return meta, err
}

// Release drops one reference to hash, deleting the blob at zero
func (b *BlobStore) Release(hash string) error {
	removed := false
	err := b.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, hash)
		if err != nil {
			return err
		}

		meta.RefCount--
		if meta.RefCount > 0 {
			return setMeta(txn, meta)
		}
		if err := txn.Delete(dataKey(hash)); err != nil {
			return err
		}
		removed = true
		return txn.Delete(metaKey(hash))
	})
	if err == ErrBlobNotFound {
		return errors.NotFound(fmt.Sprintf("blob %s not found", hash))
	}
	if err != nil {
		return fmt.Errorf("releasing blob: %w", err)
	}

	if removed {
		b.cache.Remove(hash)
	}
	return nil
}

func (b *BlobStore) close() {
	b.codec.close()
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func metaKey(hash string) []byte { return []byte("blob:" + hash) }
func dataKey(hash string) []byte { return []byte("blobdata:" + hash) }

func getMeta(txn *badger.Txn, hash string) (BlobMeta, error) {
	var meta BlobMeta
	item, err := txn.Get(metaKey(hash))
	if err == badger.ErrKeyNotFound {
		return meta, ErrBlobNotFound
	}
	if err != nil {
		return meta, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	return meta, err
}

func setMeta(txn *badger.Txn, meta BlobMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return txn.Set(metaKey(meta.Hash), data)
}

package vectorindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"chat-risk-analysis/backend/pkg/logger"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	metaDimensionsKey = "meta:dimensions"
	fragmentPrefix    = "frag:"
)

// ErrIndexNotFound is returned by Load when path holds no index.
var ErrIndexNotFound = errors.New("vector index not found")

type badgerLogger struct {
	log *logger.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (b *badgerLogger) Errorf(msg string, items ...any) {
	b.log.Error(fmt.Sprintf(msg, items...))
}

func (b *badgerLogger) Warningf(msg string, items ...any) {
	b.log.Warn(fmt.Sprintf(msg, items...))
}

func (b *badgerLogger) Infof(msg string, items ...any) {
	b.log.Debug(fmt.Sprintf(msg, items...))
}

func (b *badgerLogger) Debugf(msg string, items ...any) {
	b.log.Debug(fmt.Sprintf(msg, items...))
}

// manifestFile is created by badger in every initialised store.
const manifestFile = "MANIFEST"

func open(path string, readOnly bool, log *logger.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogger{log: log.WithComponent("badger")}
	opts.Compression = options.None
	opts.ReadOnly = readOnly
	return badger.Open(opts)
}

// Save writes idx to the badger directory at path, replacing any previous contents.
func Save(path string, idx *MemoryIndex, log *logger.Logger) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	db, err := open(path, false, log)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer db.Close()

	if err := db.DropAll(); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()

	dims := make([]byte, 4)
	binary.LittleEndian.PutUint32(dims, uint32(idx.Dimensions()))
	if err := wb.Set([]byte(metaDimensionsKey), dims); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}

	n := 0
	err = idx.each(func(f Fragment, vec []float32) error {
		n++
		return wb.Set(fragmentKey(n), encodeFragment(f, vec))
	})
	if err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	return nil
}

// Load reads the index stored at path into memory and closes the store.
func Load(path string, log *logger.Logger) (*MemoryIndex, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrIndexNotFound, path)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	if _, err := os.Stat(filepath.Join(path, manifestFile)); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s", ErrIndexNotFound, path)
	}

	// Read-only so the server never writes to a shared or mounted index.
	db, err := open(path, true, log)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer db.Close()

	var idx *MemoryIndex
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaDimensionsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w at %s", ErrIndexNotFound, path)
		}
		if err != nil {
			return err
		}
		var dims uint32
		if err := item.Value(func(val []byte) error {
			if len(val) != 4 {
				return fmt.Errorf("corrupt dimensions record")
			}
			dims = binary.LittleEndian.Uint32(val)
			return nil
		}); err != nil {
			return err
		}
		idx, err = NewMemoryIndex(int(dims))
		if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fragmentPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				f, vec, err := decodeFragment(val, int(dims))
				if err != nil {
					return err
				}
				return idx.Add([]Fragment{f}, [][]float32{vec})
			})
			if err != nil {
				return fmt.Errorf("read fragment %s: %w", it.Item().Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// fragmentKey zero-pads the sequence so iteration order matches insertion order.
func fragmentKey(n int) []byte {
	return []byte(fmt.Sprintf("%s%010d", fragmentPrefix, n))
}

// Value layout: idLen (4), id, textLen (4), text, vector (dims*4), little endian.
func encodeFragment(f Fragment, vec []float32) []byte {
	buf := make([]byte, 0, 8+len(f.ID)+len(f.Text)+len(vec)*4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.ID)))
	buf = append(buf, f.ID...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.Text)))
	buf = append(buf, f.Text...)
	for _, v := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func decodeFragment(b []byte, dims int) (Fragment, []float32, error) {
	var f Fragment
	readString := func() (string, error) {
		if len(b) < 4 {
			return "", fmt.Errorf("truncated fragment")
		}
		n := int(binary.LittleEndian.Uint32(b))
		b = b[4:]
		if len(b) < n {
			return "", fmt.Errorf("truncated fragment")
		}
		s := string(b[:n])
		b = b[n:]
		return s, nil
	}
	var err error
	if f.ID, err = readString(); err != nil {
		return f, nil, err
	}
	if f.Text, err = readString(); err != nil {
		return f, nil, err
	}
	if len(b) != dims*4 {
		return f, nil, fmt.Errorf("%w: stored %d bytes, expected %d", ErrDimensionMismatch, len(b), dims*4)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f, vec, nil
}

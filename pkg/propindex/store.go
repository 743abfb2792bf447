package propindex

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"
)

// FileIndexStore is an append-only durable store for property index
// records. Record format:
//
//	[ID:8][DataLen:4][Data:N][Checksum:4]
//
// where Data is the snappy-compressed key and Checksum is CRC32 (IEEE)
// over the compressed bytes. The last record for an id wins, so rewriting
// an id is an append, not an in-place update.
type FileIndexStore struct {
	mu   sync.Mutex
	path string
}

// NewFileIndexStore creates a store over the given file path. The file is
// created on first write.
func NewFileIndexStore(path string) *FileIndexStore {
	return &FileIndexStore{path: path}
}

// WriteIndex appends a record for the id
func (s *FileIndexStore) WriteIndex(id uint64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer f.Close()

	compressed := snappy.Encode(nil, []byte(key))

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, id)
	binary.Write(&buf, binary.LittleEndian, uint32(len(compressed)))
	buf.Write(compressed)
	binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(compressed))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append index record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync index store: %w", err)
	}
	return nil
}

// LoadIndex scans the file for the id's record and returns its key.
// Returns ErrIndexNotFound when no record exists; read or corruption
// errors are surfaced, never converted to absence.
func (s *FileIndexStore) LoadIndex(ctx context.Context, id uint64) (string, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return "", err
	}
	key, ok := all[id]
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrIndexNotFound, id)
	}
	return key, nil
}

// LoadAll reads every record in the file. Used for reload and to move the
// id generator's high-water mark past recovered ids.
func (s *FileIndexStore) LoadAll(ctx context.Context) (map[uint64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[uint64]string{}, nil
		}
		return nil, fmt.Errorf("read index store: %w", err)
	}

	out := make(map[uint64]string)
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var id uint64
		var dataLen uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("corrupt index store header: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &dataLen); err != nil {
			return nil, fmt.Errorf("corrupt index store header: %w", err)
		}
		if int(dataLen) > r.Len() {
			return nil, fmt.Errorf("corrupt index store: truncated record for id %d", id)
		}

		compressed := make([]byte, dataLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return nil, fmt.Errorf("corrupt index store: %w", err)
		}

		var checksum uint32
		if err := binary.Read(r, binary.LittleEndian, &checksum); err != nil {
			return nil, fmt.Errorf("corrupt index store: missing checksum for id %d: %w", id, err)
		}
		if crc32.ChecksumIEEE(compressed) != checksum {
			return nil, fmt.Errorf("corrupt index store: checksum mismatch for id %d", id)
		}

		key, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, fmt.Errorf("corrupt index store: decompress id %d: %w", id, err)
		}
		out[id] = string(key)
	}
	return out, nil
}

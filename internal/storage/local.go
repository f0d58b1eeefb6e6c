package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jaywantadh/peerlink/internal/compressor"
	"github.com/jaywantadh/peerlink/internal/encryptor"
)

const (
	compressedSuffix = ".lz4"
	sealedSuffix     = ".sealed"
)

var ErrNotFound = errors.New("stored upload not found")

// LocalStorage implements the Storage interface for the local filesystem.
type LocalStorage struct {
	basePath string
	compress bool
	enc      encryptor.Encryptor
}

// NewLocalStorage creates the base directory if needed. When compress is set,
// uploads that are not already in a compressed format are kept lz4 framed on
// disk and decompressed again by Open.
func NewLocalStorage(basePath string, compress bool) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, compress: compress}, nil
}

// WithEncryption seals every upload written from now on with enc.
func (s *LocalStorage) WithEncryption(enc encryptor.Encryptor) *LocalStorage {
	s.enc = enc
	return s
}

func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// Put writes data to <uuid>_<name> so that concurrent uploads of the same
// file name never overwrite each other.
func (s *LocalStorage) Put(name string, data []byte) (Location, error) {
	fileName := uuid.NewString() + "_" + filepath.Base(name)

	if s.compress && !compressor.ShouldSkipCompression(name) {
		compressed, err := compressor.CompressBytes(data)
		if err != nil {
			return "", err
		}
		data = compressed
		fileName += compressedSuffix
	}

	if s.enc != nil {
		sealed, err := s.enc.Encrypt(data)
		if err != nil {
			return "", err
		}
		data = sealed
		fileName += sealedSuffix
	}

	filePath := filepath.Join(s.basePath, fileName)
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write upload to file: %w", err)
	}
	return Location(filePath), nil
}

// Open returns a reader over the original upload bytes.
func (s *LocalStorage) Open(loc Location) (io.ReadCloser, error) {
	path := string(loc)
	if strings.HasSuffix(path, sealedSuffix) {
		return s.openSealed(path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return nil, fmt.Errorf("failed to open stored upload: %w", err)
	}
	if !strings.HasSuffix(path, compressedSuffix) {
		return file, nil
	}
	return &decompressingFile{Reader: compressor.NewReader(file), file: file}, nil
}

// openSealed decrypts a sealed upload in memory.
func (s *LocalStorage) openSealed(path string) (io.ReadCloser, error) {
	if s.enc == nil {
		return nil, fmt.Errorf("stored upload %s is sealed but storage has no encryptor", path)
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open stored upload: %w", err)
	}
	data, err := s.enc.Decrypt(sealed)
	if err != nil {
		return nil, err
	}

	var r io.Reader = bytes.NewReader(data)
	if strings.HasSuffix(strings.TrimSuffix(path, sealedSuffix), compressedSuffix) {
		r = compressor.NewReader(r)
	}
	return io.NopCloser(r), nil
}

func (s *LocalStorage) Remove(loc Location) error {
	if err := os.Remove(string(loc)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stored upload: %w", err)
	}
	return nil
}

type decompressingFile struct {
	io.Reader
	file *os.File
}

func (d *decompressingFile) Close() error {
	return d.file.Close()
}

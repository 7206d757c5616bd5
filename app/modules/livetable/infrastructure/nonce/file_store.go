package nonceledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the nonce map in a JSON file, replaced atomically on save.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

type fileState struct {
	Nonces map[string]uint64 `json:"nonces"`
}

func (s *FileStore) Load(_ context.Context) (map[string]uint64, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]uint64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce file: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt nonce file %s: %w", s.Path, err)
	}
	if st.Nonces == nil {
		st.Nonces = map[string]uint64{}
	}
	return st.Nonces, nil
}

func (s *FileStore) Save(_ context.Context, nonces map[string]uint64) error {
	data, err := json.Marshal(fileState{Nonces: nonces})
	if err != nil {
		return fmt.Errorf("failed to encode nonces: %w", err)
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create nonce dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".nonces-*")
	if err != nil {
		return fmt.Errorf("failed to create temp nonce file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write nonce file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close nonce file: %w", err)
	}
	return os.Rename(tmp.Name(), s.Path)
}

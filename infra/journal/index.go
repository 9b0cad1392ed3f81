package journal

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

// IndexEntry describes one sealed segment in segment_index.json.
type IndexEntry struct {
	File      string `json:"file"`
	FirstSeq  uint64 `json:"first_seq"`
	LastSeq   uint64 `json:"last_seq"`
	Timestamp string `json:"timestamp"`
}

const indexFile = "segment_index.json"

// AppendIndexEntry records a newly sealed segment.
func AppendIndexEntry(dir string, entry IndexEntry) error {
	path := filepath.Join(dir, indexFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, _ := json.Marshal(entry)
	_, err = f.Write(append(data, '\n'))
	return err
}

// LoadAllIndex reads every segment entry, oldest first.
func LoadAllIndex(dir string) ([]IndexEntry, error) {
	b, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []IndexEntry
	for _, line := range bytes.Split(b, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e IndexEntry
		if err := json.Unmarshal(line, &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// LoadLastIndex returns the most recently sealed segment, if any.
func LoadLastIndex(dir string) (*IndexEntry, error) {
	index, err := LoadAllIndex(dir)
	if err != nil || len(index) == 0 {
		return nil, err
	}
	return &index[len(index)-1], nil
}

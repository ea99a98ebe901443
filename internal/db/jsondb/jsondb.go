// Package jsondb is a file-backed storage: the in-memory storage is loaded
// from a JSON file on start and written back on Close.
package jsondb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/patric-chuzhbe/shortlink/internal/db/memorystorage"
)

type JSONDB struct {
	*memorystorage.MemoryStorage
	fileName string
}

func New(fileName string) (*JSONDB, error) {
	memory, err := memorystorage.New()
	if err != nil {
		return nil, err
	}

	db := &JSONDB{
		MemoryStorage: memory,
		fileName:      fileName,
	}

	snapshot, err := parseJSONFile(fileName)
	if errors.Is(err, os.ErrNotExist) {
		return db, writeToJSONFile(fileName, db.Snapshot())
	}
	if err != nil {
		return nil, err
	}

	if err := db.Restore(*snapshot); err != nil {
		return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `db.Restore()` calling: %w", err)
	}

	return db, nil
}

// Close writes the current state to the file.
func (db *JSONDB) Close() error {
	return writeToJSONFile(db.fileName, db.Snapshot())
}

func parseJSONFile(fileName string) (*memorystorage.Snapshot, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	snapshot := &memorystorage.Snapshot{}
	if err := json.NewDecoder(file).Decode(snapshot); err != nil {
		return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/parseJSONFile(): error while `json.Decode()` calling: %w", err)
	}

	return snapshot, nil
}

// writeToJSONFile replaces fileName through a temporary file in the same directory.
func writeToJSONFile(fileName string, snapshot memorystorage.Snapshot) error {
	jsonData, err := json.MarshalIndent(snapshot, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fileName), filepath.Base(fileName)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(jsonData); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("error writing to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing file: %w", err)
	}

	return os.Rename(tmp.Name(), fileName)
}

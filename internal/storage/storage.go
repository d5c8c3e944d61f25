// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage wraps the badger database that persists oracle price
// observations between runs.
package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/lendcalc/internal/config"
	"github.com/blinklabs-io/lendcalc/internal/logging"
	"github.com/dgraph-io/badger/v4"
)

const (
	fingerprintKey = "config_fingerprint"
)

var ErrNotFound = errors.New("key not found")

type Storage struct {
	db *badger.DB
}

var globalStorage = &Storage{}

// Load opens the global storage in the configured directory
func (s *Storage) Load() error {
	cfg := config.GetConfig()
	if cfg.Storage.Directory == "" {
		return errors.New("no storage directory configured")
	}
	if err := s.open(badger.DefaultOptions(cfg.Storage.Directory)); err != nil {
		return err
	}
	return s.compareFingerprint(fmt.Sprintf("network=%s", cfg.Network))
}

// Open returns a new Storage at dir. An empty dir opens an in-memory
// database.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	s := &Storage{}
	if err := s.open(opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) open(opts badger.Options) error {
	opts = opts.
		WithLogger(NewBadgerLogger()).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	s.db = db
	return nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// compareFingerprint guards against reusing a database written for another
// network
func (s *Storage) compareFingerprint(fingerprint string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fingerprintKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return txn.Set([]byte(fingerprintKey), []byte(fingerprint))
			}
			return err
		}
		return item.Value(func(v []byte) error {
			if string(v) != fingerprint {
				return fmt.Errorf(
					"config fingerprint in DB doesn't match current config: %s",
					v,
				)
			}
			return nil
		})
	})
}

// Set stores val under key
func (s *Storage) Set(key string, val []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// Get returns a copy of the value stored under key, or ErrNotFound
func (s *Storage) Get(key string) ([]byte, error) {
	var ret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return ret, err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Storage) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Iterate calls fn for every key with the given prefix, in key order.
// The value slice is only valid for the duration of the call.
func (s *Storage) Iterate(prefix string, fn func(key string, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				return fn(string(item.Key()), val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func GetStorage() *Storage {
	return globalStorage
}

// BadgerLogger is a wrapper type to give our logger the expected interface
type BadgerLogger struct {
	logger *slog.Logger
}

func NewBadgerLogger() *BadgerLogger {
	return &BadgerLogger{
		logger: logging.GetLogger().With("component", "storage"),
	}
}

func (b *BadgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(fmt.Sprintf(msg, args...))
}

func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(fmt.Sprintf(msg, args...))
}

func (b *BadgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(fmt.Sprintf(msg, args...))
}

func (b *BadgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(fmt.Sprintf(msg, args...))
}

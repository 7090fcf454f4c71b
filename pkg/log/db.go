// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bumped when the key or value layout changes.
var logBucket = []byte("logs-v2")

const defaultMaxKeys = 100000

// Key is the log time followed by the bucket sequence, logs
// from the same microsecond are kept in the order they were saved.
const keySize = 16

// DB stores logs in a bolt database, the oldest
// logs are pruned once maxKeys is reached.
type DB struct {
	db      *bolt.DB
	maxKeys int
	keys    int

	// Save failures are reported here instead of through
	// the logger, the logger would feed them back to the DB.
	errOut io.Writer
}

// OpenDB opens or creates the database at path.
func OpenDB(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open log database: %v: %w", path, err)
	}

	var keys int
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(logBucket)
		if err != nil {
			return err
		}
		keys = b.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create log bucket: %w", err)
	}

	return &DB{
		db:      db,
		maxKeys: defaultMaxKeys,
		keys:    keys,
		errOut:  os.Stderr,
	}, nil
}

// Close closes the database, SaveLogs must have returned.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveLogs saves logs from the logger until ctx is canceled
// or the logger stops.
func (d *DB) SaveLogs(ctx context.Context, l *Logger) {
	l.consume(ctx, func(log Log) {
		if err := d.save(log); err != nil {
			fmt.Fprintf(d.errOut, "could not save log: '%v' %v\n", log.Msg, err)
		}
	})
}

func (d *DB) save(log Log) error {
	value, err := json.Marshal(log)
	if err != nil {
		return err
	}

	keys := d.keys
	err = d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(logBucket)

		for keys >= d.maxKeys {
			k, _ := b.Cursor().First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			keys--
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(encodeKey(log.Time, seq), value)
	})
	if err != nil {
		return err
	}
	d.keys = keys + 1
	return nil
}

func encodeKey(t UnixMicro, seq uint64) []byte {
	key := make([]byte, keySize)
	binary.BigEndian.PutUint64(key[:8], uint64(t))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

// Query filters logs, empty filters match everything.
type Query struct {
	Levels  []Level
	Sources []string
	Streams []string

	// Only logs older than Time, zero starts at the newest log.
	Time UnixMicro

	// Maximum number of logs returned, zero means no limit.
	Limit int
}

func (q Query) match(log Log) bool {
	return contains(q.Levels, log.Level) &&
		contains(q.Sources, log.Src) &&
		contains(q.Streams, log.Stream)
}

func contains[T comparable](list []T, v T) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Query returns matching logs, newest first.
func (d *DB) Query(q Query) ([]Log, error) {
	var logs []Log

	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logBucket).Cursor()

		var k, v []byte
		if q.Time == 0 {
			k, v = c.Last()
		} else if k, _ = c.Seek(encodeKey(q.Time, 0)); k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}

		for ; k != nil; k, v = c.Prev() {
			if q.Limit != 0 && len(logs) >= q.Limit {
				return nil
			}

			var log Log
			if err := json.Unmarshal(v, &log); err != nil {
				return fmt.Errorf("unmarshal log %x: %w", k, err)
			}
			if q.match(log) {
				logs = append(logs, log)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

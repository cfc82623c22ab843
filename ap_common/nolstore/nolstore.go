/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package nolstore keeps the DFS Non-Occupancy List on disk, so channels on
// which radar was detected stay off limits across restarts.
package nolstore

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// DefaultPeriod is the non-occupancy period mandated after a radar hit.
const DefaultPeriod = 30 * time.Minute

var nolBucket = []byte("nol")

// Entry is a single frequency on the list.
type Entry struct {
	Freq    int
	Expires time.Time
}

// Store is a bbolt backed Non-Occupancy List.  It implements acs.NOL.
type Store struct {
	db     *bolt.DB
	period time.Duration
	slog   *zap.SugaredLogger

	now func() time.Time
}

// Open opens, creating if necessary, the NOL database at 'path'.  Hits
// recorded with Add stay on the list for 'period'; if it is 0, DefaultPeriod
// is used.
func Open(path string, period time.Duration, slog *zap.SugaredLogger) (*Store, error) {
	if period <= 0 {
		period = DefaultPeriod
	}
	if slog == nil {
		slog = zap.NewNop().Sugar()
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening NOL %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nolBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "initializing NOL %s", path)
	}

	return &Store{
		db:     db,
		period: period,
		slog:   slog,
		now:    time.Now,
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func freqKey(freq int) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(freq))
	return k
}

func encodeTime(t time.Time) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(t.UnixNano()))
	return v
}

func decodeTime(v []byte) (time.Time, bool) {
	if len(v) != 8 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(v))), true
}

// Add records a radar hit on a frequency.
func (s *Store) Add(freq int) error {
	return s.AddUntil(freq, s.now().Add(s.period))
}

// AddUntil puts a frequency on the list until the given time.  An existing
// entry is only ever extended.
func (s *Store) AddUntil(freq int, until time.Time) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nolBucket)
		key := freqKey(freq)
		if old, ok := decodeTime(b.Get(key)); ok && old.After(until) {
			return nil
		}
		return b.Put(key, encodeTime(until))
	})
	if err != nil {
		return errors.Wrapf(err, "adding %d to NOL", freq)
	}

	s.slog.Infof("%d on NOL until %s", freq, until.Format(time.RFC3339))
	return nil
}

// InNOL returns true if the frequency is on the list and its non-occupancy
// period hasn't expired.  If the database can't be read, every frequency is
// treated as being on the list.
func (s *Store) InNOL(freq int) bool {
	var in bool

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(nolBucket).Get(freqKey(freq))
		if v == nil {
			return nil
		}
		until, ok := decodeTime(v)
		if !ok {
			return errors.Errorf("corrupt entry for %d", freq)
		}
		in = s.now().Before(until)
		return nil
	})
	if err != nil {
		s.slog.Warnf("NOL lookup failed: %v", err)
		return true
	}
	return in
}

// Entries returns the unexpired entries, ordered by frequency.
func (s *Store) Entries() ([]Entry, error) {
	list := make([]Entry, 0)
	now := s.now()

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(nolBucket).ForEach(func(k, v []byte) error {
			until, ok := decodeTime(v)
			if !ok || len(k) != 4 || !now.Before(until) {
				return nil
			}
			list = append(list, Entry{
				Freq:    int(binary.BigEndian.Uint32(k)),
				Expires: until,
			})
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading NOL")
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Freq < list[j].Freq
	})
	return list, nil
}

// Purge drops expired and unreadable entries, returning how many were removed.
func (s *Store) Purge() (int, error) {
	var cnt int
	now := s.now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nolBucket)
		stale := make([][]byte, 0)
		err := b.ForEach(func(k, v []byte) error {
			if until, ok := decodeTime(v); !ok || !now.Before(until) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err = b.Delete(k); err != nil {
				return err
			}
		}
		cnt = len(stale)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "purging NOL")
	}
	return cnt, nil
}

// Clear empties the list.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(nolBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(nolBucket)
		return err
	})
	return errors.Wrap(err, "clearing NOL")
}

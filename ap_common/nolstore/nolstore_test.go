/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package nolstore

import (
	"path/filepath"
	"testing"
	"time"

	"sapacs/ap_common/acs"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Compile-time check that a Store can be handed to the ACS engine
var _ acs.NOL = (*Store)(nil)

func openTest(t *testing.T) (*Store, *time.Time) {
	path := filepath.Join(t.TempDir(), "nol.db")
	s, err := Open(path, 0, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestAddExpire(t *testing.T) {
	assert := require.New(t)
	s, now := openTest(t)

	assert.False(s.InNOL(5260))
	assert.NoError(s.Add(5260))
	assert.True(s.InNOL(5260))
	assert.False(s.InNOL(5280))

	*now = now.Add(DefaultPeriod - time.Second)
	assert.True(s.InNOL(5260))

	*now = now.Add(time.Second)
	assert.False(s.InNOL(5260))
}

func TestExtendOnly(t *testing.T) {
	assert := require.New(t)
	s, now := openTest(t)

	late := now.Add(time.Hour)
	assert.NoError(s.AddUntil(5500, late))

	// A new hit never shortens the period
	assert.NoError(s.Add(5500))
	list, err := s.Entries()
	assert.NoError(err)
	assert.Len(list, 1)
	assert.True(late.Equal(list[0].Expires))
}

func TestEntriesPurge(t *testing.T) {
	assert := require.New(t)
	s, now := openTest(t)

	assert.NoError(s.AddUntil(5600, now.Add(-time.Minute)))
	assert.NoError(s.Add(5300))
	assert.NoError(s.Add(5260))

	list, err := s.Entries()
	assert.NoError(err)
	assert.Len(list, 2)
	assert.Equal(5260, list[0].Freq)
	assert.Equal(5300, list[1].Freq)

	cnt, err := s.Purge()
	assert.NoError(err)
	assert.Equal(1, cnt)

	cnt, err = s.Purge()
	assert.NoError(err)
	assert.Zero(cnt)

	assert.NoError(s.Clear())
	list, err = s.Entries()
	assert.NoError(err)
	assert.Empty(list)
	assert.False(s.InNOL(5260))
}

func TestPersistence(t *testing.T) {
	assert := require.New(t)
	path := filepath.Join(t.TempDir(), "nol.db")
	slog := zaptest.NewLogger(t).Sugar()

	s, err := Open(path, time.Hour, slog)
	assert.NoError(err)
	assert.NoError(s.Add(5520))
	assert.NoError(s.Close())

	s, err = Open(path, time.Hour, slog)
	assert.NoError(err)
	defer s.Close()
	assert.True(s.InNOL(5520))
}

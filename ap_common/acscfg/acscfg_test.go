/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package acscfg

import (
	"os"
	"testing"

	"sapacs/ap_common/acs"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const packedConfig = `
country: EU
weights: 0x0000ff
channels: [2412, 5180, 5200]
pcl: [5200]
dfs_policy: deprioritized
dfs_master: true
dfs_normalize_pct: 40
width: 40
mode: 11n
skip_weather: true
`

const explicitConfig = `
weights:
  rssi: 2
  bss_count: 1
  noise_floor: 1
freq_weights:
  - freq: 5180
    pct: 50
range_weights:
  - start: 5500
    end: 5700
    pct: 80
`

func writeConfig(t *testing.T, fs afero.Fs, data string) string {
	path := "/etc/acs.yaml"
	require.NoError(t, afero.WriteFile(fs, path, []byte(data), 0644))
	return path
}

func TestLoadPacked(t *testing.T) {
	assert := require.New(t)
	Unsetenv()

	fs := afero.NewMemMapFs()
	c, err := Load(fs, writeConfig(t, fs, packedConfig))
	assert.NoError(err)

	assert.Equal("EU", c.Country)
	assert.Equal(DefaultNOLDB, c.NOLDB)
	assert.Equal(acs.DefaultWeights, c.Params.Weights)
	assert.Equal([]int{2412, 5180, 5200}, c.Params.Channels)
	assert.Equal([]int{5200}, c.Params.PCL)
	assert.Equal(acs.DFSDeprioritized, c.Params.DFSPolicy)
	assert.True(c.Params.DFSMaster)
	assert.Equal(40, c.Params.DFSNormalizePct)
	assert.Equal(40, c.Weight.Width())
	assert.Equal("11n", c.Params.Mode)
	assert.True(c.Params.SkipWeather)
	assert.Equal("EU", c.Domain.Country)
}

func TestLoadExplicit(t *testing.T) {
	assert := require.New(t)
	Unsetenv()

	fs := afero.NewMemMapFs()
	c, err := Load(fs, writeConfig(t, fs, explicitConfig))
	assert.NoError(err)

	assert.Equal(acs.Weights{RSSI: 2, BSSCount: 1, NoiseFloor: 1},
		c.Params.Weights)
	assert.Equal([6]int{120, 60, 60, 0, 0, 0}, c.Weight.LocalScales())
	assert.Equal([]acs.FreqWeight{{Freq: 5180, Pct: 50}},
		c.Params.FreqWeights)
	assert.Equal([]acs.RangeWeight{{Start: 5500, End: 5700, Pct: 80}},
		c.Params.RangeWeights)

	// Defaults
	assert.Equal(DefaultCountry, c.Country)
	assert.Equal(acs.DFSDisabled, c.Params.DFSPolicy)
	assert.Equal(100, c.Params.DFSNormalizePct)
	assert.Equal(20, c.Params.Width)
}

func TestLoadDefaults(t *testing.T) {
	assert := require.New(t)
	Unsetenv()

	c, err := Load(afero.NewMemMapFs(), "")
	assert.NoError(err)
	assert.Equal(acs.DefaultWeights, c.Params.Weights)
	assert.Equal("US", c.Domain.Country)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name   string
		config string
		nprobs int
	}{
		{"badPolicy", "dfs_policy: sometimes\n", 1},
		{"badCountry", "country: XX\n", 1},
		{"illegalChannel", "channels: [2467]\n", 1},
		{"several", "width: 30\nmode: 11z\nweights: {rssi: 20}\n", 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			Unsetenv()

			fs := afero.NewMemMapFs()
			_, err := Load(fs, writeConfig(t, fs, tc.config))
			assert.Error(err)
			verr, ok := err.(*ValidationError)
			assert.True(ok, "%v", err)
			assert.Len(verr.Problems, tc.nprobs, "%v", verr.Problems)
		})
	}

	assert := require.New(t)
	fs := afero.NewMemMapFs()

	// Unknown keys and unreadable files are not validation errors
	_, err := Load(fs, writeConfig(t, fs, "colour: blue\n"))
	assert.Error(err)
	_, ok := errors.Cause(err).(*ValidationError)
	assert.False(ok)

	_, err = Load(fs, "/no/such/file")
	assert.Error(err)
}

func TestEnvOverrides(t *testing.T) {
	assert := require.New(t)
	defer Unsetenv()

	os.Setenv("ACS_WEIGHTS", "0x21")
	os.Setenv("ACS_WIDTH", "80")
	os.Setenv("ACS_DFS_POLICY", "enabled")
	os.Setenv("ACS_COUNTRY", "de")
	os.Setenv("ACS_NOL_DB", "/tmp/nol.db")

	fs := afero.NewMemMapFs()
	c, err := Load(fs, writeConfig(t, fs, packedConfig))
	assert.NoError(err)

	assert.Equal(acs.Weights{RSSI: 1, BSSCount: 2}, c.Params.Weights)
	assert.Equal(80, c.Params.Width)
	assert.Equal(acs.DFSEnabled, c.Params.DFSPolicy)
	assert.Equal("DE", c.Domain.Country)
	assert.Equal("/tmp/nol.db", c.NOLDB)

	os.Setenv("ACS_WIDTH", "wide")
	_, err = Load(fs, "")
	assert.Error(err)
}

func TestSaveRoundTrip(t *testing.T) {
	assert := require.New(t)
	Unsetenv()

	pct := 25
	f := &File{
		Country:         "JP",
		Weights:         WeightSpec{Weights: acs.Weights{RSSI: 3, NoiseFloor: 9}},
		Channels:        []int{5180},
		DFSNormalizePct: &pct,
		Width:           80,
	}

	fs := afero.NewMemMapFs()
	assert.NoError(Save(fs, "/etc/acs.yaml", f))
	c, err := Load(fs, "/etc/acs.yaml")
	assert.NoError(err)

	assert.Equal("JP", c.Country)
	assert.Equal(acs.Weights{RSSI: 3, NoiseFloor: 9}, c.Params.Weights)
	assert.Equal([]int{5180}, c.Params.Channels)
	assert.Equal(25, c.Params.DFSNormalizePct)
	assert.Equal(80, c.Params.Width)
}

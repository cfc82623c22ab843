/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package acscfg loads the channel selection settings from a YAML file, with
// overrides from the environment.
package acscfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"sapacs/ap_common/acs"
	"sapacs/common/wifi"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tomazk/envcfg"
	"gopkg.in/yaml.v2"
)

// Defaults for settings the file doesn't mention
const (
	DefaultCountry = "US"
	DefaultNOLDB   = "/var/tmp/acs-nol.db"
)

// WeightSpec holds the metric priorities.  In the file it is either the
// packed form, e.g. 0x0000ff, or a map of the individual priorities.
type WeightSpec struct {
	acs.Weights
	set bool
}

// UnmarshalYAML accepts either form of the weights.
func (w *WeightSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var packed uint32
	if err := unmarshal(&packed); err == nil {
		w.Weights = acs.UnpackWeights(packed)
		w.set = true
		return nil
	}

	var hexed string
	if err := unmarshal(&hexed); err == nil {
		v, err := strconv.ParseUint(hexed, 0, 32)
		if err != nil {
			return errors.Errorf("bad packed weights '%s'", hexed)
		}
		w.Weights = acs.UnpackWeights(uint32(v))
		w.set = true
		return nil
	}

	var explicit acs.Weights
	if err := unmarshal(&explicit); err != nil {
		return errors.Wrap(err, "weights must be a packed integer "+
			"or a map of priorities")
	}
	w.Weights = explicit
	w.set = true
	return nil
}

// File is the on-disk layout of the configuration.
type File struct {
	Country         string            `yaml:"country,omitempty"`
	Weights         WeightSpec        `yaml:"weights,omitempty"`
	Channels        []int             `yaml:"channels,omitempty"`
	StartFreq       int               `yaml:"start_freq,omitempty"`
	EndFreq         int               `yaml:"end_freq,omitempty"`
	PCL             []int             `yaml:"pcl,omitempty"`
	DFSPolicy       string            `yaml:"dfs_policy,omitempty"`
	DFSMaster       bool              `yaml:"dfs_master,omitempty"`
	DFSNormalizePct *int              `yaml:"dfs_normalize_pct,omitempty"`
	Width           int               `yaml:"width,omitempty"`
	AllowOverlap24  bool              `yaml:"allow_overlap_24,omitempty"`
	Mode            string            `yaml:"mode,omitempty"`
	SkipWeather     bool              `yaml:"skip_weather,omitempty"`
	FreqWeights     []acs.FreqWeight  `yaml:"freq_weights,omitempty"`
	RangeWeights    []acs.RangeWeight `yaml:"range_weights,omitempty"`
	NOLDB           string            `yaml:"nol_db,omitempty"`
}

// Env holds the environment overrides.  Unset variables change nothing.
type Env struct {
	Weights   string `envcfg:"ACS_WEIGHTS"`
	Width     string `envcfg:"ACS_WIDTH"`
	DFSPolicy string `envcfg:"ACS_DFS_POLICY"`
	Country   string `envcfg:"ACS_COUNTRY"`
	NOLDB     string `envcfg:"ACS_NOL_DB"`
}

// Config is a fully validated configuration.
type Config struct {
	Country string
	NOLDB   string

	Params acs.Params
	Weight *acs.WeightConfig
	Domain *wifi.Domain
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid ACS configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, a ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, a...))
}

// Load reads the configuration file, if there is one, and applies the
// environment overrides.  An empty path yields the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	var f File

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		if err = yaml.UnmarshalStrict(data, &f); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
	}

	var env Env
	if err := envcfg.Unmarshal(&env); err != nil {
		return nil, errors.Wrap(err, "reading environment")
	}

	return Build(&f, &env)
}

// Build applies the environment overrides to the file settings and
// validates the result.
func Build(f *File, env *Env) (*Config, error) {
	verr := &ValidationError{}

	merged := *f
	if env != nil {
		merged.applyEnv(env, verr)
	}

	c := &Config{
		Country: merged.Country,
		NOLDB:   merged.NOLDB,
	}
	if c.Country == "" {
		c.Country = DefaultCountry
	}
	if c.NOLDB == "" {
		c.NOLDB = DefaultNOLDB
	}

	domain, err := wifi.NewDomain(c.Country)
	if err != nil {
		verr.add("%v", err)
	}
	c.Domain = domain

	c.Params = acs.Params{
		Weights:        merged.Weights.Weights,
		Channels:       merged.Channels,
		StartFreq:      merged.StartFreq,
		EndFreq:        merged.EndFreq,
		PCL:            merged.PCL,
		DFSMaster:      merged.DFSMaster,
		Width:          merged.Width,
		AllowOverlap24: merged.AllowOverlap24,
		Mode:           merged.Mode,
		SkipWeather:    merged.SkipWeather,
		FreqWeights:    merged.FreqWeights,
		RangeWeights:   merged.RangeWeights,
	}
	if !merged.Weights.set {
		c.Params.Weights = acs.DefaultWeights
	}

	c.Params.DFSNormalizePct = 100
	if merged.DFSNormalizePct != nil {
		c.Params.DFSNormalizePct = *merged.DFSNormalizePct
	}
	if merged.DFSPolicy != "" {
		p, err := acs.ParseDFSPolicy(merged.DFSPolicy)
		if err != nil {
			verr.add("%v", err)
		}
		c.Params.DFSPolicy = p
	}

	if domain != nil {
		for _, freq := range c.Params.Channels {
			if !domain.IsLegal(freq) {
				verr.add("channel %s not legal in %s",
					wifi.ChanString(freq), c.Country)
			}
		}
	}

	wc, err := acs.NewWeightConfig(c.Params)
	if err != nil {
		if aerr, ok := err.(*acs.ValidationError); ok {
			verr.Problems = append(verr.Problems, aerr.Problems...)
		} else {
			verr.add("%v", err)
		}
	}
	if len(verr.Problems) > 0 {
		return nil, verr
	}

	c.Weight = wc
	c.Params = wc.Params()
	return c, nil
}

func (f *File) applyEnv(env *Env, verr *ValidationError) {
	if env.Weights != "" {
		packed, err := strconv.ParseUint(env.Weights, 0, 32)
		if err != nil {
			verr.add("bad ACS_WEIGHTS '%s'", env.Weights)
		} else {
			f.Weights = WeightSpec{
				Weights: acs.UnpackWeights(uint32(packed)),
				set:     true,
			}
		}
	}
	if env.Width != "" {
		w, err := strconv.Atoi(env.Width)
		if err != nil {
			verr.add("bad ACS_WIDTH '%s'", env.Width)
		} else {
			f.Width = w
		}
	}
	if env.DFSPolicy != "" {
		f.DFSPolicy = env.DFSPolicy
	}
	if env.Country != "" {
		f.Country = env.Country
	}
	if env.NOLDB != "" {
		f.NOLDB = env.NOLDB
	}
}

// Save writes the file form of a configuration.
func Save(fs afero.Fs, path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}
	if err = afero.WriteFile(fs, path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// MarshalYAML always writes the packed form.
func (w WeightSpec) MarshalYAML() (interface{}, error) {
	return w.Packed(), nil
}

// Unsetenv clears every override, for tests and tools that must ignore the
// caller's environment.
func Unsetenv() {
	for _, k := range []string{"ACS_WEIGHTS", "ACS_WIDTH", "ACS_DFS_POLICY",
		"ACS_COUNTRY", "ACS_NOL_DB"} {
		os.Unsetenv(k)
	}
}

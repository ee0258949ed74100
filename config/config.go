/*
cadenza-battery - Battery life prediction service for the Cadenza shell
Copyright (C) 2025, The Cadenza Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config loads the daemon configuration from a YAML file,
// falling back to defaults when the file is absent.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "/etc/cadenza/battery.yaml"

type Config struct {
	// PowerSupplyPath is the sysfs power-supply class directory.
	PowerSupplyPath string `yaml:"power-supply-path"`

	// PollIntervalSeconds is the watcher fallback timeout between
	// samples when no status event arrives.
	PollIntervalSeconds int `yaml:"poll-interval-seconds"`

	// StateFile overrides the default XDG state path when set.
	StateFile string `yaml:"state-file"`

	// PersistEveryTicks is how many samples pass between state saves.
	PersistEveryTicks int `yaml:"persist-every-ticks"`

	EWMAAlpha          float64 `yaml:"ewma-alpha"`
	RLSLambda          float64 `yaml:"rls-lambda"`
	RLSInitialVariance float64 `yaml:"rls-initial-variance"`

	// MetricsAddr is the listen address for /metrics and /healthz.
	// Empty disables the HTTP endpoint.
	MetricsAddr string `yaml:"metrics-addr"`
}

func DefaultConfig() Config {
	return Config{
		PowerSupplyPath:     "/sys/class/power_supply",
		PollIntervalSeconds: 30,
		PersistEveryTicks:   10,
		EWMAAlpha:           0.3,
		RLSLambda:           0.98,
		RLSInitialVariance:  5.0,
		MetricsAddr:         "localhost:9767",
	}
}

// Load reads the config file at path. A missing file yields the
// defaults; a malformed or out-of-range file is an error.
func Load(path string) (Config, error) {
	conf := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := conf.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return conf, nil
}

func (c Config) validate() error {
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll-interval-seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.PersistEveryTicks <= 0 {
		return fmt.Errorf("persist-every-ticks must be positive, got %d", c.PersistEveryTicks)
	}
	if c.EWMAAlpha <= 0 || c.EWMAAlpha > 1 {
		return fmt.Errorf("ewma-alpha must be in (0, 1], got %v", c.EWMAAlpha)
	}
	if c.RLSLambda <= 0 || c.RLSLambda > 1 {
		return fmt.Errorf("rls-lambda must be in (0, 1], got %v", c.RLSLambda)
	}
	if c.RLSInitialVariance <= 0 {
		return fmt.Errorf("rls-initial-variance must be positive, got %v", c.RLSInitialVariance)
	}
	return nil
}

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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/cadenza-shell/cadenza-battery/batterystate"
	"github.com/cadenza-shell/cadenza-battery/config"
	"github.com/cadenza-shell/cadenza-battery/predictor"
	"github.com/cadenza-shell/cadenza-battery/sysfs"
)

var version = "No version provided"

var log = logrus.New()

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"Path to the config file"`
	LogLevel   string `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		ConfigFile: config.DefaultConfigFile,
	}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	log.Info("Running version: ", version)

	conf, err := config.Load(args.ConfigFile)
	if err != nil {
		return err
	}

	battery, err := sysfs.FindBattery(conf.PowerSupplyPath, log)
	if err != nil {
		return err
	}
	log.Info("Using battery device ", battery.Path())

	statePath := conf.StateFile
	if statePath == "" {
		statePath, err = predictor.DefaultStatePath()
		if err != nil {
			return err
		}
	}

	pred, err := predictor.Load(statePath)
	if err != nil {
		if errors.Is(err, predictor.ErrStateVersion) {
			log.Warnf("Discarding saved state: %v", err)
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Could not load predictor state from %s: %v", statePath, err)
		}
		pred = predictor.NewWithParams(conf.RLSLambda, conf.RLSInitialVariance, conf.EWMAAlpha)
		log.Info("Starting with a fresh predictor")
	} else {
		log.Info("Loaded predictor state from ", statePath)
	}

	cell := batterystate.NewCell()

	if conf.MetricsAddr != "" {
		startMetricsServer(conf.MetricsAddr)
	}
	if err := startService(cell); err != nil {
		// The daemon is still useful without D-Bus, e.g. when run from
		// a session with no system bus.
		log.Warnf("Could not start D-Bus service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &watcher{
		battery:   battery,
		pred:      pred,
		cell:      cell,
		statePath: statePath,
		conf:      conf,
	}
	w.run(ctx)

	// One final save so learning survives the restart.
	if err := predictor.Save(pred, statePath); err != nil {
		log.Warnf("Could not persist predictor state on shutdown: %v", err)
	}
	log.Info("Shutting down")
	return nil
}

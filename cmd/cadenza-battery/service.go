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
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/cadenza-shell/cadenza-battery/batterystate"
)

const (
	dbusName = "org.cadenza.Battery"
	dbusPath = "/org/cadenza/Battery"
)

type service struct {
	cell *batterystate.Cell
}

func startService(cell *batterystate.Cell) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		cell: cell,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")

	go emitStateSignals(conn, cell.Subscribe())
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// emitStateSignals broadcasts every published snapshot on the bus.
func emitStateSignals(conn *dbus.Conn, updates <-chan batterystate.BatteryState) {
	for state := range updates {
		err := conn.Emit(
			dbus.ObjectPath(dbusPath),
			dbusName+".State",
			state.Percentage,
			state.Charging,
			int64(state.TimeRemainingKernel.Seconds()),
			int64(state.TimeRemainingSmart.Seconds()),
			state.Confidence,
		)
		if err != nil {
			log.Debugf("Could not emit battery state signal: %v", err)
		}
	}
}

// IsAvailable returns whether a battery state has been published yet.
func (s service) IsAvailable() (bool, *dbus.Error) {
	_, ok := s.cell.Get()
	return ok, nil
}

// GetBatteryState returns the latest snapshot: percentage, charging,
// kernel and smart time remaining in seconds, and confidence.
func (s service) GetBatteryState() (float64, bool, int64, int64, float64, *dbus.Error) {
	state, ok := s.cell.Get()
	if !ok {
		return 0, false, 0, 0, 0, makeDbusError(".GetBatteryState", errors.New("no battery state published yet"))
	}
	return state.Percentage,
		state.Charging,
		int64(state.TimeRemainingKernel.Seconds()),
		int64(state.TimeRemainingSmart.Seconds()),
		state.Confidence,
		nil
}

// Predict returns the smart time remaining in seconds and its
// confidence.
func (s service) Predict() (int64, float64, *dbus.Error) {
	state, ok := s.cell.Get()
	if !ok {
		return 0, 0, makeDbusError(".Predict", errors.New("no battery state published yet"))
	}
	return int64(state.TimeRemainingSmart.Seconds()), state.Confidence, nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}

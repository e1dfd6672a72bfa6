// Package models holds the persisted record kinds shared by the storage
// backends, the wire protocol and the HTTP surface. Every record carries a
// surrogate integer id; InvalidId marks a record that has not been
// persisted yet.
package models

import "time"

const InvalidId = -1

type Bow struct {
	Id                   int     `db:"id"                     json:"id"`
	Name                 string  `db:"name"                   json:"name"                   binding:"required"`
	MaxDrawDistance      float64 `db:"max_draw_distance"      json:"max_draw_distance"      binding:"required"`
	RemainderArrowLength float64 `db:"remainder_arrow_length" json:"remainder_arrow_length" binding:"required"`
}

type Arrow struct {
	Id            int      `db:"id"             json:"id"`
	Name          *string  `db:"name"           json:"name,omitempty"`
	HeadWeight    *float64 `db:"head_weight"    json:"head_weight,omitempty"`
	Spline        *float64 `db:"spline"         json:"spline,omitempty"`
	FeatherLength *float64 `db:"feather_length" json:"feather_length,omitempty"`
	FeatherType   *string  `db:"feather_type"   json:"feather_type,omitempty"`
	Length        float64  `db:"length"         json:"length" binding:"required"`
	Weight        float64  `db:"weight"         json:"weight" binding:"required"`
	BowId         int      `db:"bow_id"         json:"bow_id" binding:"required"`
}

// MeasureSeries groups measure runs taken against one bow. Exactly one of
// DrawDistance and DrawForce may be nil; the dispatcher rejects a series
// with neither set before it reaches storage.
type MeasureSeries struct {
	Id           int      `db:"id"            json:"id"`
	Name         string   `db:"name"          json:"name" binding:"required"`
	RestPosition float64  `db:"rest_position" json:"rest_position"`
	DrawDistance *float64 `db:"draw_distance" json:"draw_distance,omitempty"`
	DrawForce    *float64 `db:"draw_force"    json:"draw_force,omitempty"`
	Time         Time     `db:"time"          json:"time"`
	BowId        int      `db:"bow_id"        json:"bow_id" binding:"required"`
}

type Measure struct {
	Id              int     `db:"id"                json:"id"`
	MeasureInterval float64 `db:"measure_interval"  json:"measure_interval"  binding:"required"`
	MeasureSeriesId int     `db:"measure_series_id" json:"measure_series_id" binding:"required"`
	ArrowId         int     `db:"arrow_id"          json:"arrow_id"          binding:"required"`
}

type MeasurePoint struct {
	Id           int     `db:"id"            json:"id"`
	Time         int64   `db:"time"          json:"time"`
	DrawDistance float64 `db:"draw_distance" json:"draw_distance"`
	Force        float64 `db:"force"         json:"force"`
	MeasureId    int     `db:"measure_id"    json:"measure_id"`
}

// MachineStatus is transient machine state, reported by the controller and
// never persisted.
type MachineStatus string

const (
	StatusPaused   MachineStatus = "paused"
	StatusShooting MachineStatus = "shooting"
	StatusError    MachineStatus = "error"
)

func (s MachineStatus) Valid() bool {
	switch s {
	case StatusPaused, StatusShooting, StatusError:
		return true
	}
	return false
}

// Time wraps time.Time so the sqlite backend can store unix seconds while
// the wire format stays RFC3339. The zero value marshals as the epoch.
type Time struct {
	time.Time
}

func Now() Time {
	return Time{time.Now().UTC().Truncate(time.Second)}
}

func FromUnix(sec int64) Time {
	return Time{time.Unix(sec, 0).UTC()}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return t.UTC().Truncate(time.Second).MarshalJSON()
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var inner time.Time
	if err := inner.UnmarshalJSON(data); err != nil {
		return err
	}
	t.Time = inner.UTC()
	return nil
}

package store

import "strings"

var schema = `
	CREATE TABLE IF NOT EXISTS bow (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		max_draw_distance REAL NOT NULL,
		remainder_arrow_length REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS arrow (
		id INTEGER PRIMARY KEY,
		name TEXT,
		head_weight REAL,
		spline REAL,
		feather_length REAL,
		feather_type TEXT,
		length REAL NOT NULL,
		weight REAL NOT NULL,
		bow_id INTEGER NOT NULL,
		FOREIGN KEY (bow_id) REFERENCES bow (id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS measure_series (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		rest_position REAL NOT NULL,
		draw_distance REAL,
		draw_force REAL,
		time INTEGER NOT NULL,
		bow_id INTEGER NOT NULL,
		FOREIGN KEY (bow_id) REFERENCES bow (id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS measure (
		id INTEGER PRIMARY KEY,
		measure_interval REAL NOT NULL,
		measure_series_id INTEGER NOT NULL,
		arrow_id INTEGER NOT NULL,
		FOREIGN KEY (measure_series_id) REFERENCES measure_series (id) ON DELETE CASCADE,
		FOREIGN KEY (arrow_id) REFERENCES arrow (id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS measure_point (
		id INTEGER PRIMARY KEY,
		time INTEGER NOT NULL,
		draw_distance REAL NOT NULL,
		force REAL NOT NULL,
		measure_id INTEGER NOT NULL,
		FOREIGN KEY (measure_id) REFERENCES measure (id) ON DELETE CASCADE
	);`

var qBows = `
	SELECT *
	FROM bow`

var qInsertBow = `
	INSERT
	INTO bow (name, max_draw_distance, remainder_arrow_length)
	VALUES (?, ?, ?)
	RETURNING id`

var qUpdateBow = `
	UPDATE bow
	SET (name, max_draw_distance, remainder_arrow_length) = (?, ?, ?)
	WHERE id = ?`

var qDeleteBow = `
	DELETE
	FROM bow
	WHERE id = ?`

var qArrows = `
	SELECT *
	FROM arrow
	WHERE bow_id = ?`

var qInsertArrow = `
	INSERT
	INTO arrow (name, head_weight, spline, feather_length, feather_type, length, weight, bow_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

var qMeasureSeries = `
	SELECT id, name, rest_position, draw_distance, draw_force, time, bow_id
	FROM measure_series
	WHERE bow_id = ?`

var qInsertMeasureSeries = `
	INSERT
	INTO measure_series (name, rest_position, draw_distance, draw_force, time, bow_id)
	VALUES (?, ?, ?, ?, ?, ?)
	RETURNING id`

var qMeasures = `
	SELECT *
	FROM measure
	WHERE measure_series_id = ?`

var qInsertMeasure = `
	INSERT
	INTO measure (measure_interval, measure_series_id, arrow_id)
	VALUES (?, ?, ?)
	RETURNING id`

var qMeasurePoints = `
	SELECT *
	FROM measure_point
	WHERE measure_id = ?`

// byIds builds the targeted re-read for a change event's id set.
func byIds(table string, n int) string {
	if n < 1 {
		n = 1
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	switch table {
	case TableMeasureSeries:
		return `
	SELECT id, name, rest_position, draw_distance, draw_force, time, bow_id
	FROM measure_series
	WHERE id IN (` + marks + `)`
	default:
		return `
	SELECT *
	FROM ` + table + `
	WHERE id IN (` + marks + `)`
	}
}

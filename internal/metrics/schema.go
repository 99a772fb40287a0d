package metrics

import "codeberg.org/mutker/handheldctl/internal/storage"

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS fan_metrics (
	       timestamp    INTEGER NOT NULL,
	       fan          INTEGER NOT NULL,
	       temp_current REAL    NOT NULL,
	       temp_average REAL    NOT NULL,
	       rpm          INTEGER NOT NULL CHECK (typeof(rpm) = 'integer'),
	       speed_target INTEGER NOT NULL CHECK (typeof(speed_target) = 'integer'),
	       speed_applied INTEGER NOT NULL CHECK (typeof(speed_applied) = 'integer'),
	       auto_control INTEGER NOT NULL CHECK (auto_control IN (0, 1)),
	       actuated     INTEGER NOT NULL CHECK (actuated IN (0, 1)),
	       PRIMARY KEY (timestamp, fan)
	   );
	   CREATE TABLE IF NOT EXISTS power_events (
	       timestamp     INTEGER NOT NULL,
	       tdp_watts     INTEGER NOT NULL CHECK (typeof(tdp_watts) = 'integer'),
	       boost_enabled INTEGER NOT NULL CHECK (boost_enabled IN (0, 1)),
	       smt_enabled   INTEGER NOT NULL CHECK (smt_enabled IN (0, 1)),
	       success       INTEGER NOT NULL CHECK (success IN (0, 1))
	   );`

	insertFanMetricsSQL = `
    INSERT OR REPLACE INTO fan_metrics (
        timestamp, fan,
        temp_current, temp_average,
        rpm, speed_target, speed_applied,
        auto_control, actuated
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertPowerEventSQL = `
    INSERT INTO power_events (
        timestamp, tdp_watts, boost_enabled, smt_enabled, success
    ) VALUES (?, ?, ?, ?, ?)`
)

var schema = storage.Schema{
	Name:      "metrics",
	Version:   SchemaVersion,
	CreateSQL: createTablesSQL,
	Tables:    []string{"fan_metrics", "power_events"},
}

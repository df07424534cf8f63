package profile

const (
	SchemaVersion = 1

	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS schema_versions (
	    version     INTEGER PRIMARY KEY,
	    applied_at  TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS profile (
	    id          INTEGER PRIMARY KEY CHECK (id = 1),
	    resting_hr  INTEGER NOT NULL CHECK (resting_hr > 0),
	    max_hr      INTEGER NOT NULL,
	    updated_at  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS zones (
	    kind   TEXT    NOT NULL CHECK (kind IN ('power', 'heart_rate')),
	    idx    INTEGER NOT NULL,
	    name   TEXT    NOT NULL,
	    min    INTEGER NOT NULL,
	    color  TEXT    NOT NULL,
	    PRIMARY KEY (kind, idx)
	);`

	insertVersionSQL = `INSERT OR IGNORE INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`

	selectProfileSQL = `SELECT resting_hr, max_hr FROM profile WHERE id = 1`

	selectZonesSQL = `SELECT kind, name, min, color FROM zones ORDER BY kind, idx`

	upsertProfileSQL = `
	INSERT INTO profile (id, resting_hr, max_hr, updated_at) VALUES (1, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	    resting_hr = excluded.resting_hr,
	    max_hr     = excluded.max_hr,
	    updated_at = excluded.updated_at`

	deleteZonesSQL = `DELETE FROM zones`

	insertZoneSQL = `INSERT INTO zones (kind, idx, name, min, color) VALUES (?, ?, ?, ?, ?)`
)

const (
	zoneKindPower     = "power"
	zoneKindHeartRate = "heart_rate"
)

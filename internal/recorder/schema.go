package recorder

import (
	"database/sql"

	"codeberg.org/mutker/tomography/internal/errors"
	"codeberg.org/mutker/tomography/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp    INTEGER NOT NULL,
	       interval_ms  INTEGER NOT NULL CHECK (interval_ms > 0)
	   );
	   CREATE TABLE IF NOT EXISTS cpu_rates (
	       sample_id  INTEGER NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
	       core       INTEGER NOT NULL,
	       system     INTEGER NOT NULL CHECK (typeof(system) = 'integer'),
	       user       INTEGER NOT NULL CHECK (typeof(user) = 'integer'),
	       idle       INTEGER NOT NULL CHECK (typeof(idle) = 'integer'),
	       PRIMARY KEY (sample_id, core)
	   );
	   CREATE TABLE IF NOT EXISTS net_rates (
	       sample_id  INTEGER NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
	       iface      TEXT NOT NULL,
	       sent       INTEGER NOT NULL CHECK (typeof(sent) = 'integer'),
	       recv       INTEGER NOT NULL CHECK (typeof(recv) = 'integer'),
	       PRIMARY KEY (sample_id, iface)
	   );
	   CREATE INDEX IF NOT EXISTS samples_timestamp ON samples(timestamp);`

	insertSampleSQL = `INSERT INTO samples (timestamp, interval_ms) VALUES (?, ?)`
	insertCPUSQL    = `INSERT INTO cpu_rates (sample_id, core, system, user, idle) VALUES (?, ?, ?, ?, ?)`
	insertNetSQL    = `INSERT INTO net_rates (sample_id, iface, sent, recv) VALUES (?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "create_tables",
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}

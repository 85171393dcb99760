package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// MetadataDB records per-recording job metadata in SQLite. It stores
// operational facts only (source, output path, duration), not transcript
// text.
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB opens (creating if needed) the metadata database.
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		session_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		local_path TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		duration_seconds REAL,
		word_count INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_created_at ON recordings(created_at);
	CREATE INDEX IF NOT EXISTS idx_recordings_session_name ON recordings(session_name);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveRecording inserts one finished recording's metadata.
func (mdb *MetadataDB) SaveRecording(
	jobID, sessionName, sourceType, localPath string,
	durationSeconds float64, wordCount int,
) error {
	query := `
	INSERT INTO recordings (job_id, session_name, source_type, local_path, created_at, duration_seconds, word_count)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := mdb.db.Exec(query, jobID, sessionName, sourceType, localPath,
		time.Now(), durationSeconds, wordCount)
	if err != nil {
		return fmt.Errorf("save recording metadata: %w", err)
	}
	return nil
}

// GetRecording retrieves recording metadata by job ID.
func (mdb *MetadataDB) GetRecording(jobID string) (map[string]interface{}, error) {
	query := `
	SELECT job_id, session_name, source_type, local_path, created_at, duration_seconds, word_count
	FROM recordings WHERE job_id = ?
	`

	row := mdb.db.QueryRow(query, jobID)

	var (
		jid, name, source, local string
		createdAt                time.Time
		durationSeconds          float64
		wordCount                int
	)

	if err := row.Scan(&jid, &name, &source, &local, &createdAt, &durationSeconds, &wordCount); err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}

	return map[string]interface{}{
		"job_id":           jid,
		"session_name":     name,
		"source_type":      source,
		"local_path":       local,
		"created_at":       createdAt,
		"duration_seconds": durationSeconds,
		"word_count":       wordCount,
	}, nil
}

// ListRecordings returns the most recent recordings, newest first.
func (mdb *MetadataDB) ListRecordings(limit int) ([]map[string]interface{}, error) {
	query := `
	SELECT job_id, session_name, source_type, local_path, created_at, duration_seconds, word_count
	FROM recordings ORDER BY created_at DESC LIMIT ?
	`

	rows, err := mdb.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recordings []map[string]interface{}

	for rows.Next() {
		var (
			jid, name, source, local string
			createdAt                time.Time
			durationSeconds          float64
			wordCount                int
		)

		if err := rows.Scan(&jid, &name, &source, &local, &createdAt, &durationSeconds, &wordCount); err != nil {
			continue
		}

		recordings = append(recordings, map[string]interface{}{
			"job_id":           jid,
			"session_name":     name,
			"source_type":      source,
			"local_path":       local,
			"created_at":       createdAt,
			"duration_seconds": durationSeconds,
			"word_count":       wordCount,
		})
	}

	return recordings, nil
}

// Close closes the database connection.
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

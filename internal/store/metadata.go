package store

import "database/sql"

// SetImportedFileHash records the content hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO import_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		"file:"+path, hash, hash,
	)
	return err
}

// GetImportedFileHash returns the recorded hash for a file.
// Returns empty string and nil error if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM import_metadata WHERE key = ?`, "file:"+path).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

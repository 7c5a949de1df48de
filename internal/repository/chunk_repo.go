package repository

import (
	"strings"
	"unicode"

	"github.com/liliang-cn/askdesk/internal/domain"
)

// ChunkRepository keeps the full-text index of project file passages
type ChunkRepository struct {
	db *DB
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Index stores the passages of a file. Passages already indexed for the
// file are replaced.
func (r *ChunkRepository) Index(file *domain.ProjectFile, chunks []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM file_chunks WHERE file_id = ?`, file.ID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO file_chunks (content, file_id, project_id, user_id, filename)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.Exec(chunk, file.ID, file.ProjectID, file.UserID, file.OriginalName); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of indexed passages of a file
func (r *ChunkRepository) Count(fileID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM file_chunks WHERE file_id = ?`, fileID).Scan(&n)
	return n, err
}

// Search returns the passages of userID's files that best match query, best
// first. An empty projectID searches every project of the user.
func (r *ChunkRepository) Search(userID, projectID, query string, limit int) ([]domain.Source, error) {
	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `
		SELECT file_id, project_id, filename, content, bm25(file_chunks)
		FROM file_chunks
		WHERE file_chunks MATCH ? AND user_id = ?`
	args := []any{match, userID}
	if projectID != "" {
		sqlQuery += ` AND project_id = ?`
		args = append(args, projectID)
	}
	sqlQuery += ` ORDER BY bm25(file_chunks) LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		var rank float64
		if err := rows.Scan(&s.FileID, &s.ProjectID, &s.Filename, &s.Content, &rank); err != nil {
			return nil, err
		}
		// bm25 ranks better matches lower
		s.Score = -rank
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// MatchQuery turns free text into an FTS5 query that matches any of its
// words. Words are quoted so user input cannot use the query syntax.
func MatchQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

package store

// SearchMessages performs a full-text search on message text, optionally
// restricted to one chat.
func (db *DB) SearchMessages(query string, chatNumber string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT ` + prefixed("m.", messageColumns) + `,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`
	args := []any{query}
	if chatNumber != "" {
		q += " AND m.chat_number = ?"
		args = append(args, chatNumber)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var snippet string
		m, err := scanMessage(snippetScanner{rows, &snippet})
		if err != nil {
			return nil, err
		}
		r.Message = *m
		r.Snippet = snippet
		results = append(results, r)
	}
	return results, rows.Err()
}

// snippetScanner appends the trailing snippet column to a message scan.
type snippetScanner struct {
	s       scanner
	snippet *string
}

func (s snippetScanner) Scan(dest ...any) error {
	return s.s.Scan(append(dest, s.snippet)...)
}

package recall

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Index stores and retrieves memory snippets for one campaign. Each
// campaign maps to its own collection; the collection name is derived
// from a hash so arbitrary campaign titles (including CJK) stay out of
// identifiers.
type Index struct {
	db         *sql.DB
	collection string
	logger     zerolog.Logger
}

func NewIndex(db *sql.DB, campaignName string, logger zerolog.Logger) *Index {
	collection := collectionName(campaignName)
	logger.Info().Str("collection", collection).Str("campaign", campaignName).Msg("recall index ready")
	return &Index{
		db:         db,
		collection: collection,
		logger:     logger.With().Str("component", "recall").Logger(),
	}
}

func collectionName(name string) string {
	return fmt.Sprintf("miskatonic_%x", md5.Sum([]byte(name)))
}

// Add indexes a text snippet with optional metadata. Empty text is a
// no-op.
func (ix *Index) Add(ctx context.Context, text string, metadata map[string]string) error {
	if text == "" {
		return nil
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	id := uuid.NewString()
	_, err = ix.db.ExecContext(ctx,
		`INSERT INTO memories (id, collection, content, metadata) VALUES (?, ?, ?, ?)`,
		id, ix.collection, text, string(meta),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	ix.logger.Debug().Str("id", id).Int("len", len(text)).Msg("memory indexed")
	return nil
}

// Query returns up to k snippets relevant to the query text, best
// match first. An empty query or an empty collection yields no results.
func (ix *Index) Query(ctx context.Context, query string, k int) ([]string, error) {
	match := buildMatch(query)
	if match == "" || k <= 0 {
		return nil, nil
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT m.content
		FROM memories_fts f
		JOIN memories m ON m.rowid = f.rowid
		WHERE memories_fts MATCH ? AND m.collection = ?
		ORDER BY bm25(memories_fts)
		LIMIT ?`,
		match, ix.collection, k,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		results = append(results, content)
	}
	return results, rows.Err()
}

// Count reports how many snippets this campaign has indexed.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE collection = ?`, ix.collection).Scan(&n)
	return n, err
}

// buildMatch turns free text into an FTS5 OR-query of quoted tokens,
// so punctuation and operators in narrative text cannot break the
// match syntax.
func buildMatch(query string) string {
	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " OR ")
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"orbnews/internal/story"
)

var (
	ErrEmptyBatch = errors.New("empty story batch")
	ErrNotFound   = errors.New("story not found")
)

var _ story.Store = (*Store)(nil)

func (s *Store) PutBatch(ctx context.Context, key story.Key, stories []story.Story) error {
	if key == "" {
		return fmt.Errorf("put batch: empty cache key")
	}
	if len(stories) == 0 {
		return ErrEmptyBatch
	}

	now := s.clock()
	q := s.sql.Insert("stories").Columns(storyColumns...)
	for i, st := range stories {
		id := st.ID
		if strings.TrimSpace(id) == "" {
			id = uuid.NewString()
		}
		publishedAt := st.PublishedAt
		if publishedAt.IsZero() {
			publishedAt = now
		}
		q = q.Values(
			id,
			string(key),
			st.Category,
			st.Epoch,
			st.ModelID,
			st.Language,
			st.StoryType,
			i,
			st.Headline,
			st.Summary,
			st.FullText,
			st.Source,
			st.HistoricalFigure,
			publishedAt.UTC(),
			now,
			nil,
			0,
			st.RequestedCount,
		)
	}
	insertSQL, insertArgs, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert batch query: %w", err)
	}
	deleteSQL, deleteArgs, err := s.sql.Delete("stories").Where(sq.Eq{"cache_key": string(key)}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete batch query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put batch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteSQL, deleteArgs...); err != nil {
		return fmt.Errorf("delete previous batch: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put batch: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key story.Key) ([]story.Story, error) {
	updateSQL, updateArgs, err := s.sql.Update("stories").
		Set("access_count", sq.Expr("access_count + 1")).
		Set("last_accessed", s.clock()).
		Where(sq.Eq{"cache_key": string(key)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build touch batch query: %w", err)
	}
	selectSQL, selectArgs, err := s.sql.Select(storyColumns...).
		From("stories").
		Where(sq.Eq{"cache_key": string(key)}).
		OrderBy("story_index ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get batch query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin get batch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, updateSQL, updateArgs...); err != nil {
		return nil, fmt.Errorf("touch batch: %w", err)
	}
	rows, err := tx.QueryContext(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	out, err := scanStories(rows)
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit get batch: %w", err)
	}
	return out, nil
}

func (s *Store) Exists(ctx context.Context, key story.Key) (bool, error) {
	q := s.sql.Select("1").From("stories").Where(sq.Eq{"cache_key": string(key)}).Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

func (s *Store) Find(ctx context.Context, f story.Filter) ([]story.Story, error) {
	where := sq.Eq{}
	if f.Category != "" {
		where["category"] = f.Category
	}
	if f.Epoch != "" {
		where["epoch"] = f.Epoch
	}
	if f.Language != "" {
		where["language"] = f.Language
	}
	if f.StoryType != "" {
		where["story_type"] = f.StoryType
	}

	q := s.sql.Select(storyColumns...).
		From("stories").
		Where(where).
		OrderBy(
			"(last_accessed IS NULL) DESC",
			"last_accessed ASC",
			"access_count ASC",
			"created_at DESC",
			"story_index ASC",
		)
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("find stories: %w", err)
	}
	out, err := scanStories(rows)
	if err != nil {
		return nil, fmt.Errorf("scan found stories: %w", err)
	}
	return out, nil
}

// ByID loads one story without touching its access statistics.
func (s *Store) ByID(ctx context.Context, id string) (story.Story, error) {
	sqlStr, args, err := s.sql.Select(storyColumns...).
		From("stories").
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return story.Story{}, fmt.Errorf("build story by id query: %w", err)
	}
	st, err := scanStory(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return story.Story{}, ErrNotFound
		}
		return story.Story{}, fmt.Errorf("story by id: %w", err)
	}
	return st, nil
}

func (s *Store) Touch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := s.sql.Update("stories").
		Set("access_count", sq.Expr("access_count + 1")).
		Set("last_accessed", s.clock()).
		Where(sq.Eq{"id": ids})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build touch query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("touch stories: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, topN int) (story.Stats, error) {
	if topN <= 0 {
		topN = 5
	}
	var out story.Stats

	countSQL, countArgs, err := s.sql.Select(
		"COUNT(*)",
		"COUNT(DISTINCT category)",
		"COUNT(DISTINCT epoch)",
		"COUNT(DISTINCT model_id)",
		"COUNT(DISTINCT language)",
	).From("stories").ToSql()
	if err != nil {
		return story.Stats{}, fmt.Errorf("build stats count query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(
		&out.TotalStories,
		&out.DistinctCategories,
		&out.DistinctEpochs,
		&out.DistinctModels,
		&out.DistinctLanguages,
	); err != nil {
		return story.Stats{}, fmt.Errorf("stats count: %w", err)
	}

	categories, err := s.categoryStats(ctx)
	if err != nil {
		return story.Stats{}, err
	}
	out.Categories = categories

	out.MostAccessed, err = s.topStories(ctx, topN, "access_count DESC", "last_accessed DESC")
	if err != nil {
		return story.Stats{}, fmt.Errorf("most accessed: %w", err)
	}
	out.MostRecent, err = s.topStories(ctx, topN, "created_at DESC", "story_index ASC")
	if err != nil {
		return story.Stats{}, fmt.Errorf("most recent: %w", err)
	}
	return out, nil
}

func (s *Store) categoryStats(ctx context.Context) ([]story.CategoryStats, error) {
	q := s.sql.Select("category", "epoch", "model_id", "language", "COUNT(*)").
		From("stories").
		GroupBy("category", "epoch", "model_id", "language")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build category stats query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	byCategory := map[string]*story.CategoryStats{}
	for rows.Next() {
		var category, epoch, model, language string
		var n int64
		if err := rows.Scan(&category, &epoch, &model, &language, &n); err != nil {
			return nil, fmt.Errorf("scan category stats row: %w", err)
		}
		cs, ok := byCategory[category]
		if !ok {
			cs = &story.CategoryStats{Category: category}
			byCategory[category] = cs
		}
		cs.Count += n
		cs.Epochs = appendUnique(cs.Epochs, epoch)
		cs.Models = appendUnique(cs.Models, model)
		cs.Languages = appendUnique(cs.Languages, language)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category stats rows: %w", err)
	}

	out := make([]story.CategoryStats, 0, len(byCategory))
	for _, cs := range byCategory {
		slices.Sort(cs.Epochs)
		slices.Sort(cs.Models)
		slices.Sort(cs.Languages)
		out = append(out, *cs)
	}
	slices.SortFunc(out, func(a, b story.CategoryStats) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Category, b.Category)
	})
	return out, nil
}

func (s *Store) topStories(ctx context.Context, n int, orderBy ...string) ([]story.Story, error) {
	q := s.sql.Select(storyColumns...).From("stories").OrderBy(orderBy...).Limit(uint64(n))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	return scanStories(rows)
}

func (s *Store) ClearOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must not be negative")
	}
	cutoff := s.clock().Add(-time.Duration(days) * 24 * time.Hour)
	q := s.sql.Delete("stories").Where(sq.Lt{"created_at": cutoff})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build clear query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("clear old stories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear old stories rows affected: %w", err)
	}
	return n, nil
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

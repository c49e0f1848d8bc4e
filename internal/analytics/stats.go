package analytics

import (
	"context"
	"fmt"
	"time"
)

type Visit struct {
	ID        int64     `json:"id"`
	HashedIP  string    `json:"hashed_ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

type SectionCount struct {
	Section string `json:"section"`
	Count   int64  `json:"count"`
}

type Stats struct {
	TotalVisitors    int64          `json:"total_visitors"`
	UniqueVisitors   int64          `json:"unique_visitors"`
	VisitorsToday    int64          `json:"visitors_today"`
	VisitorsThisWeek int64          `json:"visitors_this_week"`
	TotalNavigations int64          `json:"total_navigations"`
	PageSessions     int64          `json:"page_sessions"`
	TopSections      []SectionCount `json:"top_sections"`
	RecentVisitors   []Visit        `json:"recent_visitors"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()
	weekAgo := now.Add(-7 * 24 * time.Hour).Unix()

	stats := &Stats{}
	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.TotalVisitors, `SELECT COUNT(*) FROM visitors`, nil},
		{&stats.UniqueVisitors, `SELECT COUNT(DISTINCT hashed_ip) FROM visitors`, nil},
		{&stats.VisitorsToday, `SELECT COUNT(*) FROM visitors WHERE visited_at >= ?`, []any{startOfDay}},
		{&stats.VisitorsThisWeek, `SELECT COUNT(*) FROM visitors WHERE visited_at >= ?`, []any{weekAgo}},
		{&stats.TotalNavigations, `SELECT COUNT(*) FROM navigations`, nil},
		{&stats.PageSessions, `SELECT COUNT(DISTINCT page_id) FROM navigations`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("querying stats: %w", err)
		}
	}

	var err error
	stats.TopSections, err = s.TopSections(ctx)
	if err != nil {
		return nil, err
	}

	stats.RecentVisitors, err = s.RecentVisitors(ctx, recentVisitorsLimit)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// TopSections counts navigations per section, most visited first.
func (s *Store) TopSections(ctx context.Context) ([]SectionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section, COUNT(*) AS n
		FROM navigations
		GROUP BY section
		ORDER BY n DESC, section ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sections: %w", err)
	}
	defer rows.Close()

	var out []SectionCount
	for rows.Next() {
		var sc SectionCount
		if err := rows.Scan(&sc.Section, &sc.Count); err != nil {
			return nil, fmt.Errorf("scanning section count: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sections: %w", err)
	}
	return out, nil
}

func (s *Store) RecentVisitors(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hashed_ip, COALESCE(user_agent, ''), COALESCE(path, ''), visited_at
		FROM visitors
		ORDER BY visited_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying visitors: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var (
			v  Visit
			ts int64
		)
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &ts); err != nil {
			return nil, fmt.Errorf("scanning visitor: %w", err)
		}
		v.Timestamp = time.Unix(ts, 0).UTC()
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visitors: %w", err)
	}
	return visits, nil
}

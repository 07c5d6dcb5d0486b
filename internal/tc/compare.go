package tc

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tcprefs-go/internal/model"
)

// RowStatus classifies one (name, secondary) cell of a comparison.
type RowStatus int

const (
	RowSame RowStatus = iota
	RowDifferent
	RowOnlyPrimary
	RowOnlySecondary
)

func (r RowStatus) String() string {
	switch r {
	case RowDifferent:
		return "Different"
	case RowOnlyPrimary:
		return "Only primary"
	case RowOnlySecondary:
		return "Only secondary"
	default:
		return "Same"
	}
}

// Column is one connection's side of a comparison: a name→values snapshot
// plus freshness bookkeeping. Err holds a short human-readable message when
// the last refresh of this column failed; other columns are unaffected.
type Column struct {
	Connection *model.Connection
	Values     map[string][]string // present names map to a non-nil slice
	Fresh      bool                // true right after a successful re-import
	SnapshotAt *time.Time
	Err        string
}

// Comparison holds aligned snapshots of one primary and N secondary
// connections over a fixed universe of preference names.
type Comparison struct {
	Names     []string
	Primary   *Column
	Secondary []*Column
}

// ClassifyRow compares a primary entry against one secondary entry.
// nil means the name is absent on that side; comparison of present lists is
// element-wise and order-sensitive.
func ClassifyRow(primary, secondary []string) RowStatus {
	switch {
	case primary == nil && secondary == nil:
		return RowSame
	case primary == nil:
		return RowOnlySecondary
	case secondary == nil:
		return RowOnlyPrimary
	case slices.Equal(primary, secondary):
		return RowSame
	default:
		return RowDifferent
	}
}

// RowHasAnyDiff reports whether a name classifies as anything but Same
// against at least one secondary column. Backs the "only differences" filter.
func (c *Comparison) RowHasAnyDiff(name string) bool {
	p := c.Primary.Values[name]
	for _, col := range c.Secondary {
		if ClassifyRow(p, col.Values[name]) != RowSame {
			return true
		}
	}
	return false
}

// BuildComparison assembles store-backed snapshots for the primary and each
// secondary connection over the given name universe. Columns start out
// non-fresh; refresh them individually to pull live data.
func (s *Service) BuildComparison(primaryID string, secondaryIDs []string, names []string) (*Comparison, error) {
	primary, err := s.buildColumn(primaryID, names)
	if err != nil {
		return nil, err
	}

	secondary := make([]*Column, 0, len(secondaryIDs))
	for _, id := range secondaryIDs {
		col, err := s.buildColumn(id, names)
		if err != nil {
			return nil, err
		}
		secondary = append(secondary, col)
	}

	return &Comparison{Names: names, Primary: primary, Secondary: secondary}, nil
}

func (s *Service) buildColumn(connectionID string, names []string) (*Column, error) {
	conn, err := s.store.GetConnection(connectionID)
	if err != nil {
		return nil, fmt.Errorf("loading connection %s: %w", connectionID, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("unknown connection: %s", connectionID)
	}

	values, err := s.store.SnapshotValues(connectionID, names)
	if err != nil {
		return nil, fmt.Errorf("snapshotting %s: %w", conn.Name, err)
	}

	col := &Column{Connection: conn, Values: values}
	col.SnapshotAt = s.snapshotTime(conn, names)
	return col, nil
}

// snapshotTime is the newest lastImportedAt across the universe, falling
// back to the connection's run-end stamp.
func (s *Service) snapshotTime(conn *model.Connection, names []string) *time.Time {
	if t, err := s.store.LatestImportTime(conn.ID, names); err == nil && t != nil {
		return t
	}
	return conn.LastImportCompletedAt
}

// RefreshColumn re-imports one column's connection and re-snapshots it.
// A login/fetch failure is column-scoped: the column keeps its previous
// values, loses its fresh flag and records a short error message. Nothing
// propagates to sibling columns.
func (s *Service) RefreshColumn(ctx context.Context, col *Column, names []string, batchSize int) {
	col.Err = ""
	_, err := s.ImportAll(ctx, col.Connection, batchSize)
	if err != nil {
		s.logger.Warn("column refresh failed", "connection", col.Connection.Name, "error", err)
		col.Fresh = false
		col.Err = ReadableRefreshError(err)
		return
	}

	values, err := s.store.SnapshotValues(col.Connection.ID, names)
	if err != nil {
		col.Fresh = false
		col.Err = ReadableRefreshError(err)
		return
	}
	col.Values = values
	col.Fresh = true
	col.SnapshotAt = s.snapshotTime(col.Connection, names)
}

// RefreshAllSecondary refreshes every secondary column, at most maxParallel
// at a time. Distinct connections are independent imports; per-column error
// isolation is preserved, so this never returns an error.
func (s *Service) RefreshAllSecondary(ctx context.Context, c *Comparison, maxParallel, batchSize int) {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, col := range c.Secondary {
		col := col
		g.Go(func() error {
			s.RefreshColumn(gctx, col, c.Names, batchSize)
			return nil
		})
	}
	_ = g.Wait()
}

// findAny returns the stored preference for a name from the primary
// connection first, then each secondary in order.
func (s *Service) findAny(c *Comparison, name string) *model.Preference {
	if p, err := s.store.FindPreferenceByName(c.Primary.Connection.ID, name); err == nil && p != nil {
		return p
	}
	for _, col := range c.Secondary {
		if p, err := s.store.FindPreferenceByName(col.Connection.ID, name); err == nil && p != nil {
			return p
		}
	}
	return nil
}

// CategoryFor resolves the display category for a name. Display-only; not
// part of the diff.
func (s *Service) CategoryFor(c *Comparison, name string) string {
	if p := s.findAny(c, name); p != nil {
		return p.Category
	}
	return ""
}

// MatchesSearch reports whether a comparison row matches a free-text filter:
// the filter is lowercased and whitespace-tokenized, and every token must
// appear in the row's name/category/values/comment haystack.
func (s *Service) MatchesSearch(c *Comparison, name, filter string) bool {
	raw := strings.TrimSpace(filter)
	if raw == "" {
		return true
	}
	tokens := strings.Fields(strings.ToLower(raw))

	parts := []string{name}
	if p := s.findAny(c, name); p != nil {
		parts = append(parts, p.Category)
		if p.Comment != nil {
			parts = append(parts, *p.Comment)
		}
	}
	parts = append(parts, strings.Join(c.Primary.Values[name], " "))
	for _, col := range c.Secondary {
		parts = append(parts, strings.Join(col.Values[name], " "))
	}
	haystack := strings.ToLower(strings.Join(parts, " "))

	for _, tok := range tokens {
		if !strings.Contains(haystack, tok) {
			return false
		}
	}
	return true
}

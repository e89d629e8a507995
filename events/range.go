package events

import (
	"context"
	"slices"
	"time"

	"calendar/metrics"
	"calendar/models"

	"github.com/rdleal/intervalst/interval"
)

// Accepted timestamp layouts, most specific first. Calendar clients send
// local times without a zone; those are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime reads an event or query timestamp.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type span struct {
	start, end time.Time
}

// ListRange returns the events overlapping [from, to], in stored order.
// Events whose start is not a timestamp cannot be placed and are always
// returned.
func (s *Service) ListRange(ctx context.Context, username string, from, to time.Time) ([]models.Event, error) {
	if to.Before(from) {
		metrics.EventOperations.WithLabelValues("list_range", "rejected").Inc()
		return nil, ErrInvalidRange
	}

	all := s.List(ctx, username)
	matched, err := overlapping(all, from, to)
	if err != nil {
		metrics.EventOperations.WithLabelValues("list_range", "error").Inc()
		return nil, err
	}

	out := make([]models.Event, 0, len(matched))
	for _, i := range matched {
		out = append(out, all[i])
	}
	metrics.EventOperations.WithLabelValues("list_range", "success").Inc()
	return out, nil
}

// overlapping indexes the events in an interval tree and returns the sorted
// positions of those intersecting [from, to].
func overlapping(events []models.Event, from, to time.Time) ([]int, error) {
	tree := interval.NewSearchTree[int](func(x, y time.Time) int { return x.Compare(y) })

	// the tree holds one value per interval, so events sharing a span are
	// grouped
	groups := make(map[span]int)
	var members [][]int
	var matched []int

	for i, ev := range events {
		start, ok := ParseTime(ev.Start())
		if !ok {
			matched = append(matched, i)
			continue
		}
		end, ok := ParseTime(ev.End())
		if !ok || end.Before(start) {
			end = start
		}
		if !end.After(start) {
			end = start.Add(time.Nanosecond)
		}

		key := span{start, end}
		g, seen := groups[key]
		if !seen {
			g = len(members)
			groups[key] = g
			members = append(members, nil)
			if err := tree.Insert(start, end, g); err != nil {
				return nil, err
			}
		}
		members[g] = append(members[g], i)
	}

	if !to.After(from) {
		to = from.Add(time.Nanosecond)
	}
	hits, _ := tree.AllIntersections(from, to)
	for _, g := range hits {
		matched = append(matched, members[g]...)
	}
	slices.Sort(matched)
	return matched, nil
}

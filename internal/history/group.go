// Package history groups past scans and feedback by hostname and runs the
// debounced website search.
package history

import (
	"sort"

	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/utils"
)

// HostGroup is every scan of one hostname, newest first.
type HostGroup struct {
	Host            string
	Count           int
	LatestGrade     string
	LatestScore     float64
	LatestTimestamp int64
	Entries         []model.ScanHistoryEntry
}

// GroupByHost buckets entries by hostname. Entries whose URL has no parsable
// host are skipped. Groups are ordered by their latest timestamp, newest first.
func GroupByHost(entries []model.ScanHistoryEntry) []HostGroup {
	byHost := make(map[string]*HostGroup)
	var order []string

	for _, e := range entries {
		host, err := utils.Hostname(e.URL)
		if err != nil {
			continue
		}
		g, ok := byHost[host]
		if !ok {
			g = &HostGroup{Host: host}
			byHost[host] = g
			order = append(order, host)
		}
		g.Entries = append(g.Entries, e)
	}

	groups := make([]HostGroup, 0, len(order))
	for _, host := range order {
		g := byHost[host]
		sort.SliceStable(g.Entries, func(i, j int) bool {
			return g.Entries[i].Timestamp > g.Entries[j].Timestamp
		})
		latest := g.Entries[0]
		g.Count = len(g.Entries)
		g.LatestGrade = latest.Grade
		g.LatestScore = latest.PerformanceScore
		g.LatestTimestamp = latest.Timestamp
		groups = append(groups, *g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LatestTimestamp > groups[j].LatestTimestamp
	})
	return groups
}

// FeedbackGroup is every feedback entry for one hostname, newest first.
type FeedbackGroup struct {
	Host            string
	Count           int
	AverageRating   float64
	LatestTimestamp int64
	Entries         []model.FeedbackEntry
}

// GroupFeedback applies the GroupByHost rules to feedback entries.
func GroupFeedback(entries []model.FeedbackEntry) []FeedbackGroup {
	byHost := make(map[string]*FeedbackGroup)
	var order []string

	for _, e := range entries {
		host, err := utils.Hostname(e.URL)
		if err != nil {
			continue
		}
		g, ok := byHost[host]
		if !ok {
			g = &FeedbackGroup{Host: host}
			byHost[host] = g
			order = append(order, host)
		}
		g.Entries = append(g.Entries, e)
	}

	groups := make([]FeedbackGroup, 0, len(order))
	for _, host := range order {
		g := byHost[host]
		sort.SliceStable(g.Entries, func(i, j int) bool {
			return g.Entries[i].Timestamp > g.Entries[j].Timestamp
		})
		sum := 0
		for _, e := range g.Entries {
			sum += e.Rating
		}
		g.Count = len(g.Entries)
		g.AverageRating = float64(sum) / float64(g.Count)
		g.LatestTimestamp = g.Entries[0].Timestamp
		groups = append(groups, *g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LatestTimestamp > groups[j].LatestTimestamp
	})
	return groups
}

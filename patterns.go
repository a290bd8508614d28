package main

import (
	"sort"
	"strings"
	"time"
)

// How many days of history each spot keeps.
const memoryRetentionDays = 30

// Minimum appearances for an item to count as recurring.
const recurringThreshold = 3

// Cap on how many recurring items the patterns retain.
const recurringCap = 10

// Monday-first iteration order. Ties on day patterns go to the first weekday
// reaching the max in this order; that is a documented tie-break, not a claim
// about the "correct" day.
var weekdayOrder = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

// normalizeItemName is the one normalization rule shared by recurring
// detection and recurring lookups.
func normalizeItemName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RecomputePatterns derives SpotPatterns from a record sequence. Pure except
// for prevLongestStreak, which carries the running maximum across pruning.
// now anchors the streak walk; timestamps are bucketed in local time.
func RecomputePatterns(records []CheckRecord, prevLongestStreak int, now time.Time) SpotPatterns {
	p := SpotPatterns{
		Recurring:     map[string]int{},
		LongestStreak: prevLongestStreak,
	}
	if len(records) == 0 {
		return p
	}

	p.Recurring = recurringItems(records)
	p.WorstDay, p.BestDay = dayPatterns(records)
	p.UsuallySortedBy = usualSortedTime(records)

	p.CurrentStreak = currentStreak(records, now)
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	return p
}

func recurringItems(records []CheckRecord) map[string]int {
	counts := map[string]int{}
	for _, rec := range records {
		for _, item := range rec.ToSort {
			counts[normalizeItemName(item)]++
		}
	}

	// Deterministic cap: count descending, then name ascending.
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > recurringCap {
		names = names[:recurringCap]
	}

	out := map[string]int{}
	for _, name := range names {
		if counts[name] >= recurringThreshold {
			out[name] = counts[name]
		}
	}
	return out
}

func dayPatterns(records []CheckRecord) (worst, best string) {
	attention := map[time.Weekday]int{}
	sorted := map[time.Weekday]int{}
	for _, rec := range records {
		day := rec.Timestamp.Local().Weekday()
		if rec.Status == StatusSorted {
			sorted[day]++
		} else {
			attention[day]++
		}
	}

	worstCount, bestCount := 0, 0
	for _, day := range weekdayOrder {
		if attention[day] > worstCount {
			worstCount = attention[day]
			worst = day.String()
		}
		if sorted[day] > bestCount {
			bestCount = sorted[day]
			best = day.String()
		}
	}
	return worst, best
}

func usualSortedTime(records []CheckRecord) string {
	hours := map[int]int{}
	for _, rec := range records {
		if rec.Status == StatusSorted {
			hours[rec.Timestamp.Local().Hour()]++
		}
	}
	if len(hours) == 0 {
		return ""
	}

	bestHour, bestCount := 0, 0
	for h := 0; h < 24; h++ {
		if hours[h] > bestCount {
			bestCount = hours[h]
			bestHour = h
		}
	}
	return time.Date(2000, 1, 1, bestHour, 0, 0, 0, time.Local).Format("3:04 PM")
}

// currentStreak walks backward from today over the retention window. The
// latest record of each local calendar day decides that day's status. A
// sorted day extends the streak and bridges any unchecked gap days since the
// previous sorted day; a needs-attention day stops the walk.
func currentStreak(records []CheckRecord, now time.Time) int {
	daily := map[string]CheckStatus{}
	for _, rec := range records {
		key := rec.Timestamp.Local().Format("2006-01-02")
		daily[key] = rec.Status // records are time-ascending, last wins
	}

	today := now.Local()
	streak := 0
	gap := 0
	for i := 0; i < memoryRetentionDays; i++ {
		key := today.AddDate(0, 0, -i).Format("2006-01-02")
		status, checked := daily[key]
		if !checked {
			gap++
			continue
		}
		if status != StatusSorted {
			break
		}
		streak += gap + 1
		gap = 0
	}
	return streak
}

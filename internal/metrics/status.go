package metrics

import "sort"

// StatusBucket is the failure count for one source/status code pair, where
// source is "api" or an auth operation.
type StatusBucket struct {
	Source string
	Code   string
	Count  int
}

// FlattenStatusBuckets converts a nested source->status map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by source/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for source, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Source: source, Code: code, Count: count})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Source == rows[j].Source {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Source < rows[j].Source
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

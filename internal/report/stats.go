// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"sort"

	"github.com/pdiddy/batchblast/pkg/types"
)

// FileStats summarizes one dataset.
type FileStats struct {
	Name         string
	Hits         int
	AvgIdentity  float64
	UniqueTaxIDs int
}

// NameCount is a label with its number of hits.
type NameCount struct {
	Name  string
	Count int
}

// Stats summarizes every dataset of a job. Identity figures are taken over
// per-dataset averages of datasets that have hits.
type Stats struct {
	TotalHits    int
	Datasets     int
	MeanIdentity float64
	MaxIdentity  float64
	MinIdentity  float64

	// UniqueTaxIDs is the sum of per-dataset distinct taxids.
	UniqueTaxIDs int

	Files      []FileStats
	TopSpecies []NameCount
	TopQueries []NameCount
}

// Summarize computes Stats for datasets.
func Summarize(datasets []types.QueryDataset) Stats {
	s := Stats{Datasets: len(datasets)}
	species := map[string]int{}
	queries := map[string]int{}

	var averaged int
	var sum float64
	for _, ds := range datasets {
		f := FileStats{Name: ds.Name, Hits: len(ds.Records)}
		taxids := map[int]bool{}
		var identity float64
		for _, r := range ds.Records {
			identity += r.IdentityPct
			taxids[r.TaxID] = true
			if r.ScientificName != "" {
				species[r.ScientificName]++
			}
			if r.QueryTitle != "" {
				queries[r.QueryTitle]++
			}
		}
		f.UniqueTaxIDs = len(taxids)
		if f.Hits > 0 {
			f.AvgIdentity = identity / float64(f.Hits)
			if averaged == 0 || f.AvgIdentity > s.MaxIdentity {
				s.MaxIdentity = f.AvgIdentity
			}
			if averaged == 0 || f.AvgIdentity < s.MinIdentity {
				s.MinIdentity = f.AvgIdentity
			}
			sum += f.AvgIdentity
			averaged++
		}
		s.TotalHits += f.Hits
		s.UniqueTaxIDs += f.UniqueTaxIDs
		s.Files = append(s.Files, f)
	}
	if averaged > 0 {
		s.MeanIdentity = sum / float64(averaged)
	}
	s.TopSpecies = top(species, maxTopEntries)
	s.TopQueries = top(queries, maxTopEntries)
	return s
}

// top returns the n largest counts, ties broken by name.
func top(counts map[string]int, n int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, NameCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

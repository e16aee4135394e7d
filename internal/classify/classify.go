// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify labels hit records as normal or anomalous by keyword,
// clusters anomalies by species group, and samples normal records.
package classify

import (
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/pdiddy/batchblast/pkg/types"
)

// DefaultSampleSize is the normal-sample size used when none is configured.
const DefaultSampleSize = 5

// IsAnomaly reports whether title fails the non-anomaly keyword test: an
// empty title is always anomalous, otherwise the title is anomalous when no
// keyword occurs in it (case-insensitive). Blank keywords are ignored.
func IsAnomaly(title string, keywords []string) bool {
	if title == "" {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// Classifier partitions datasets. The zero value samples with the global
// random source and DefaultSampleSize.
type Classifier struct {
	Keywords   []string
	SampleSize int

	// Rand draws the normal sample. Nil uses the global source.
	Rand *rand.Rand
}

// New returns a Classifier configured from cfg.
func New(cfg types.ClassifyConfig) *Classifier {
	return &Classifier{
		Keywords:   cfg.NonAnomalyKeywords,
		SampleSize: cfg.NormalSampleSize,
	}
}

// Classify partitions ds into anomalies and normals, groups the anomalies,
// and draws a normal sample. Record order within each partition follows
// ds.Records.
func (c *Classifier) Classify(ds types.QueryDataset) types.ClassifiedDataset {
	out := types.ClassifiedDataset{
		Name:      ds.Name,
		Total:     len(ds.Records),
		Anomalies: []types.HitRecord{},
		Normals:   []types.HitRecord{},
	}
	for _, r := range ds.Records {
		if IsAnomaly(r.SubjectTitle, c.Keywords) {
			out.Anomalies = append(out.Anomalies, r)
		} else {
			out.Normals = append(out.Normals, r)
		}
	}
	out.Groups = GroupAnomalies(out.Anomalies)
	out.NormalSamples = c.sample(out.Normals)
	return out
}

// ClassifyAll classifies each dataset in order.
func (c *Classifier) ClassifyAll(datasets []types.QueryDataset) []types.ClassifiedDataset {
	out := make([]types.ClassifiedDataset, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, c.Classify(ds))
	}
	return out
}

// GroupAnomalies clusters records by SpeciesGroup signature. Groups are
// sorted by member count, largest first; equal counts keep the order in
// which their signature was first seen. Each group's sample is its first
// member.
func GroupAnomalies(anomalies []types.HitRecord) []types.AnomalyGroup {
	groups := []types.AnomalyGroup{}
	index := make(map[string]int)
	for _, r := range anomalies {
		sig := SpeciesGroup(r.SubjectTitle)
		i, ok := index[sig]
		if !ok {
			i = len(groups)
			index[sig] = i
			groups = append(groups, types.AnomalyGroup{Signature: sig, Sample: r})
		}
		groups[i].Count++
		groups[i].Records = append(groups[i].Records, r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}

func (c *Classifier) sample(normals []types.HitRecord) []types.HitRecord {
	size := c.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}
	if size > len(normals) {
		size = len(normals)
	}

	var perm []int
	if c.Rand != nil {
		perm = c.Rand.Perm(len(normals))
	} else {
		perm = rand.Perm(len(normals))
	}

	out := make([]types.HitRecord, 0, size)
	for _, i := range perm[:size] {
		out = append(out, normals[i])
	}
	return out
}

// PatternCount is the total number of anomalies sharing a signature across
// every dataset of a job.
type PatternCount struct {
	Signature string
	Count     int
}

// Patterns aggregates anomaly group counts across datasets, largest first
// with ties in first-seen order.
func Patterns(classified []types.ClassifiedDataset) []PatternCount {
	var out []PatternCount
	index := make(map[string]int)
	for _, c := range classified {
		for _, g := range c.Groups {
			i, ok := index[g.Signature]
			if !ok {
				i = len(out)
				index[g.Signature] = i
				out = append(out, PatternCount{Signature: g.Signature})
			}
			out[i].Count += g.Count
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

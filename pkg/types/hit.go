// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// HitRecord is one normalized alignment hit. Records are immutable once
// created. Missing numeric fields are 0 and missing strings are empty.
type HitRecord struct {
	QueryID          string  `json:"query_id" yaml:"query_id"`
	QueryTitle       string  `json:"query_title" yaml:"query_title"`
	SubjectID        string  `json:"subject_id" yaml:"subject_id"`
	SubjectAccession string  `json:"subject_accession" yaml:"subject_accession"`
	SubjectTitle     string  `json:"subject_title" yaml:"subject_title"`
	TaxID            int     `json:"taxid" yaml:"taxid"`
	ScientificName   string  `json:"sci_name" yaml:"sci_name"`
	IdentityPct      float64 `json:"identity_pct" yaml:"identity_pct"`
	BitScore         float64 `json:"bit_score" yaml:"bit_score"`
	EValue           float64 `json:"evalue" yaml:"evalue"`
}

// QueryDataset is the ordered list of hits for one query. Duplicates are
// kept in insertion order. An empty dataset is a valid outcome.
type QueryDataset struct {
	// Name is the sanitized dataset name; the CSV file is Name + ".csv".
	Name    string      `json:"name" yaml:"name"`
	Records []HitRecord `json:"records" yaml:"records"`
}

// AnomalyGroup clusters anomalous records sharing a species-group signature.
type AnomalyGroup struct {
	Signature string      `json:"species_group" yaml:"species_group"`
	Count     int         `json:"count" yaml:"count"`
	Sample    HitRecord   `json:"sample" yaml:"sample"`
	Records   []HitRecord `json:"all_records" yaml:"all_records"`
}

// ClassifiedDataset partitions a QueryDataset into anomalies and normals.
// It is derived on demand and never persisted on its own.
type ClassifiedDataset struct {
	Name      string         `json:"name" yaml:"name"`
	Total     int            `json:"total_records" yaml:"total_records"`
	Anomalies []HitRecord    `json:"anomalies" yaml:"anomalies"`
	Normals   []HitRecord    `json:"normals" yaml:"normals"`
	Groups    []AnomalyGroup `json:"grouped_anomalies" yaml:"grouped_anomalies"`

	// NormalSamples is a random sample of Normals; not reproducible across runs.
	NormalSamples []HitRecord `json:"normal_samples" yaml:"normal_samples"`
}

// AnomalyRate returns the anomaly percentage, or 0 for an empty dataset.
func (c ClassifiedDataset) AnomalyRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(len(c.Anomalies)) / float64(c.Total) * 100
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ClusterQuality holds per-cluster quality metrics reported by the clustering engine.
// Missing metrics are zero, never null.
type ClusterQuality struct {
	Silhouette float64 `json:"silhouette"`
	Cohesion   float64 `json:"cohesion"`
	Separation float64 `json:"separation"`
	Inertia    float64 `json:"inertia"`
}

// Cluster is a named group of driving forces produced by one clustering run.
type Cluster struct {
	CreatedAt time.Time       `json:"created_at"`
	Params    JSONObject      `json:"params,omitempty"`
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Label     string          `json:"label"`
	Method    string          `json:"method"`
	Algorithm string          `json:"algorithm"`
	ForceIDs  JSONStringArray `json:"force_ids"`
	Centroid  JSONFloatArray  `json:"centroid,omitempty"`
	Quality   ClusterQuality  `json:"quality"`
	Size      int             `json:"size"`
}

// MissingFields returns the names of required fields that are empty.
func (c *Cluster) MissingFields() []string {
	var missing []string
	if c.ID == "" {
		missing = append(missing, "id")
	}
	if c.Label == "" {
		missing = append(missing, "label")
	}
	if c.Algorithm == "" {
		missing = append(missing, "algorithm")
	}
	if len(c.ForceIDs) == 0 {
		missing = append(missing, "forceIds")
	}
	if c.Size <= 0 {
		missing = append(missing, "size")
	}
	return missing
}

// ClusteringQuality is the aggregate quality of one clustering run.
type ClusteringQuality struct {
	AverageSilhouette     float64 `json:"average_silhouette"`
	DaviesBouldinIndex    float64 `json:"davies_bouldin_index"`
	CalinskiHarabaszIndex float64 `json:"calinski_harabasz_index"`
	TotalInertia          float64 `json:"total_inertia"`
}

// ClusteringReport is the append-only record of one clustering run.
type ClusteringReport struct {
	CreatedAt           time.Time         `json:"created_at"`
	Params              JSONObject        `json:"params,omitempty"`
	ProjectID           string            `json:"project_id"`
	JobID               string            `json:"job_id"`
	Algorithm           string            `json:"algorithm"`
	Quality             ClusteringQuality `json:"quality"`
	ID                  int64             `json:"id"`
	ExecutionTimeMs     int64             `json:"execution_time_ms"`
	ClusterCount        int               `json:"cluster_count"`
	ForceCount          int               `json:"force_count"`
	RecommendedClusters int               `json:"recommended_clusters"`
}

// JSONStringArray is a []string stored as a JSON text column.
type JSONStringArray []string

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil || data == nil {
		*a = nil
		return err
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(a))
	return string(data), err
}

// JSONFloatArray is a []float64 stored as a JSON text column.
type JSONFloatArray []float64

// Scan implements sql.Scanner.
func (a *JSONFloatArray) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil || data == nil {
		*a = nil
		return err
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer.
func (a JSONFloatArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float64(a))
	return string(data), err
}

// JSONObject is a free-form JSON object stored as text.
type JSONObject map[string]interface{}

// Scan implements sql.Scanner.
func (o *JSONObject) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil || data == nil {
		*o = nil
		return err
	}
	return json.Unmarshal(data, o)
}

// Value implements driver.Valuer.
func (o JSONObject) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	data, err := json.Marshal(map[string]interface{}(o))
	return string(data), err
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", value)
	}
}

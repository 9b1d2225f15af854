// Package engine defines the clustering engine contract and its HTTP client.
package engine

import "context"

// ForceInput is one force handed to the clustering engine.
type ForceInput struct {
	Embedding []float64 `json:"embeddingVector,omitempty"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
}

// Params are the clustering parameters of one run.
type Params struct {
	Algorithm     string `json:"algorithm"`
	NumClusters   int    `json:"numClusters"`
	MaxIterations int    `json:"maxIterations"`
}

// Quality is the aggregate quality of a clustering result.
type Quality struct {
	AverageSilhouette     float64 `json:"averageSilhouette"`
	DaviesBouldinIndex    float64 `json:"daviesBouldinIndex"`
	CalinskiHarabaszIndex float64 `json:"calinskiHarabaszIndex"`
	TotalInertia          float64 `json:"totalInertia"`
}

// ClusterQuality holds per-cluster metrics.
type ClusterQuality struct {
	SilhouetteScore float64 `json:"silhouetteScore"`
	Cohesion        float64 `json:"cohesion"`
	Separation      float64 `json:"separation"`
	Inertia         float64 `json:"inertia"`
}

// ClusterResult is one cluster returned by the engine.
type ClusterResult struct {
	Params    map[string]interface{} `json:"params,omitempty"`
	Label     string                 `json:"label"`
	Algorithm string                 `json:"algorithm"`
	ForceIDs  []string               `json:"forceIds"`
	Centroid  []float64              `json:"centroid,omitempty"`
	Quality   ClusterQuality         `json:"quality"`
	Size      int                    `json:"size"`
}

// Result is the full response of one clustering run.
// ExecutionTime is in milliseconds.
type Result struct {
	Params              map[string]interface{} `json:"params,omitempty"`
	Algorithm           string                 `json:"algorithm"`
	Clusters            []ClusterResult        `json:"clusters"`
	OverallQuality      Quality                `json:"overallQuality"`
	ExecutionTime       float64                `json:"executionTime"`
	RecommendedClusters int                    `json:"recommendedClusters"`
}

// Engine maps forces and parameters to labeled clusters.
type Engine interface {
	Cluster(ctx context.Context, forces []ForceInput, params Params, jobID string) (*Result, error)
}

// Func adapts a function to the Engine interface.
type Func func(ctx context.Context, forces []ForceInput, params Params, jobID string) (*Result, error)

// Cluster calls f.
func (f Func) Cluster(ctx context.Context, forces []ForceInput, params Params, jobID string) (*Result, error) {
	return f(ctx, forces, params, jobID)
}

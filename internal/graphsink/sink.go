// Package graphsink mirrors persisted clusters into a FalkorDB graph:
// (:Force)-[:IN_CLUSTER]->(:Cluster) per project.
package graphsink

import (
	"context"
	"fmt"
	"time"

	falkordb "github.com/falkordb/falkordb-go"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/orion/pkg/models"
)

// Config configures the FalkorDB connection.
type Config struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	Graph    string `mapstructure:"graph" yaml:"graph"`
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool {
	return c.Addr != ""
}

// statement is one parameterized Cypher query.
type statement struct {
	params map[string]interface{}
	query  string
}

// Sink writes cluster membership to FalkorDB. It implements the
// orchestrator's completion hook.
type Sink struct {
	pool  *redis.Pool
	graph string
}

// New creates a sink. Connections are dialed on first use.
func New(cfg Config) *Sink {
	graph := cfg.Graph
	if graph == "" {
		graph = "orion"
	}
	opts := []redis.DialOption{redis.DialConnectTimeout(5 * time.Second)}
	if cfg.Password != "" {
		opts = append(opts, redis.DialPassword(cfg.Password))
	}
	return &Sink{
		graph: graph,
		pool: &redis.Pool{
			MaxIdle:     2,
			IdleTimeout: 5 * time.Minute,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", cfg.Addr, opts...)
			},
		},
	}
}

// ClusteringCompleted replaces the project+method subgraph with the new clusters.
func (s *Sink) ClusteringCompleted(ctx context.Context, projectID, method string, clusters []*models.Cluster) error {
	return s.Export(ctx, projectID, method, clusters)
}

// Export replaces the project's clusters stored under method in the graph.
// An empty method replaces every cluster of the project.
func (s *Sink) Export(ctx context.Context, projectID, method string, clusters []*models.Cluster) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("connect falkordb: %w", err)
	}
	defer conn.Close()

	g := falkordb.GraphNew(s.graph, conn)
	stmts := buildStatements(projectID, method, clusters)
	for i, st := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := g.ParameterizedQuery(st.query, st.params); err != nil {
			return fmt.Errorf("graph statement %d of %d: %w", i+1, len(stmts), err)
		}
	}
	log.Info().
		Str("project_id", projectID).
		Str("graph", s.graph).
		Str("method", method).
		Int("clusters", len(clusters)).
		Msg("Exported clusters to graph")
	return nil
}

// Close releases pooled connections.
func (s *Sink) Close() error {
	return s.pool.Close()
}

const (
	deleteProjectQuery = `MATCH (c:Cluster {project_id: $project}) DETACH DELETE c`
	deleteMethodQuery  = `MATCH (c:Cluster {project_id: $project, method: $method}) DETACH DELETE c`
	mergeClusterQuery  = `MERGE (c:Cluster {id: $id})
SET c.project_id = $project, c.label = $label, c.algorithm = $algorithm, c.method = $method, c.size = $size, c.silhouette = $silhouette
WITH c
UNWIND $forces AS fid
MERGE (f:Force {id: fid})
SET f.project_id = $project
MERGE (f)-[:IN_CLUSTER]->(c)`
)

func buildStatements(projectID, method string, clusters []*models.Cluster) []statement {
	stmts := make([]statement, 0, len(clusters)+1)
	if method == "" {
		stmts = append(stmts, statement{
			query:  deleteProjectQuery,
			params: map[string]interface{}{"project": projectID},
		})
	} else {
		stmts = append(stmts, statement{
			query:  deleteMethodQuery,
			params: map[string]interface{}{"project": projectID, "method": method},
		})
	}
	for _, c := range clusters {
		clusterMethod := c.Method
		if clusterMethod == "" {
			clusterMethod = method
		}
		forces := make([]interface{}, len(c.ForceIDs))
		for i, id := range c.ForceIDs {
			forces[i] = id
		}
		stmts = append(stmts, statement{
			query: mergeClusterQuery,
			params: map[string]interface{}{
				"id":         c.ID,
				"project":    projectID,
				"label":      c.Label,
				"algorithm":  c.Algorithm,
				"method":     clusterMethod,
				"size":       c.Size,
				"silhouette": c.Quality.Silhouette,
				"forces":     forces,
			},
		})
	}
	return stmts
}

package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/orion/pkg/models"
)

var clusterFlags struct {
	project       string
	algorithm     string
	method        string
	maxIterations int
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster a project's driving forces and print the finished job",
	RunE:  runCluster,
}

func init() {
	f := clusterCmd.Flags()
	f.StringVar(&clusterFlags.project, "project", "", "Project ID (required)")
	f.StringVar(&clusterFlags.algorithm, "algorithm", "", "Clustering algorithm (default: clustering.algorithm)")
	f.StringVar(&clusterFlags.method, "method", "", "Method the clusters are stored under (default: algorithm)")
	f.IntVar(&clusterFlags.maxIterations, "max-iterations", 0, "Engine iteration cap")
	_ = clusterCmd.MarkFlagRequired("project")
}

func runCluster(cmd *cobra.Command, args []string) error {
	if clusterFlags.maxIterations < 0 {
		return fmt.Errorf("--max-iterations must not be negative")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	params := a.params(clusterFlags.algorithm, clusterFlags.method, clusterFlags.maxIterations)
	job, status, err := a.runner.Run(ctx, clusterFlags.project, params)
	if err != nil {
		return err
	}

	final, err := a.repo.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload job %s: %w", job.ID, err)
	}
	if final == nil {
		final = job
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(final); err != nil {
		return err
	}
	if status != models.JobStatusDone {
		return fmt.Errorf("job %s %s: %s", job.ID, status, final.Error)
	}
	return nil
}

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var exportFlags struct {
	project string
	method  string
}

var exportGraphCmd = &cobra.Command{
	Use:   "export-graph",
	Short: "Replace a project's subgraph in FalkorDB with its stored clusters",
	RunE:  runExportGraph,
}

func init() {
	f := exportGraphCmd.Flags()
	f.StringVar(&exportFlags.project, "project", "", "Project ID (required)")
	f.StringVar(&exportFlags.method, "method", "", "Only clusters stored under this method")
	_ = exportGraphCmd.MarkFlagRequired("project")
}

func runExportGraph(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Graph.Enabled() {
		return errors.New("graph.addr is not configured (set ORION_GRAPH_ADDR)")
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	clusters, err := a.repo.GetClusters(ctx, exportFlags.project, exportFlags.method)
	if err != nil {
		return err
	}
	return a.sink.Export(ctx, exportFlags.project, exportFlags.method, clusters)
}

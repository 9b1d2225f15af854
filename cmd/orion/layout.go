package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/orion/internal/layout"
	"github.com/thebtf/orion/internal/visualize"
)

var layoutFlags struct {
	project  string
	view     string
	method   string
	curated  bool
	layout3D bool
	pretty   bool
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Render a layout view of a project's clusters as JSON",
	RunE:  runLayout,
}

func init() {
	f := layoutCmd.Flags()
	f.StringVar(&layoutFlags.project, "project", "", "Project ID (required)")
	f.StringVar(&layoutFlags.view, "view", string(visualize.ViewNetwork), fmt.Sprintf("View to render %v", visualize.Views))
	f.StringVar(&layoutFlags.method, "method", "", "Only clusters stored under this method")
	f.BoolVar(&layoutFlags.curated, "curated", true, "Exclude raw signals")
	f.BoolVar(&layoutFlags.layout3D, "layout3d", false, "Use 3D placement")
	f.BoolVar(&layoutFlags.pretty, "pretty", false, "Indent output")
	_ = layoutCmd.MarkFlagRequired("project")
}

func runLayout(cmd *cobra.Command, args []string) error {
	view, err := visualize.ParseView(layoutFlags.view)
	if err != nil {
		return err
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

	data, err := a.views.Render(cmd.Context(), view, layoutFlags.project, layout.ViewOptions{
		CuratedOnly: layoutFlags.curated,
		Layout3D:    layoutFlags.layout3D,
		Method:      layoutFlags.method,
	})
	if err != nil {
		return err
	}
	if layoutFlags.pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout)
	return err
}

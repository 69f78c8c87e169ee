package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/seqreg/internal/model"
	"github.com/born-ml/seqreg/internal/safetensors"
)

type tensorEntry struct {
	Name     string            `json:"name"`
	DType    safetensors.DType `json:"dtype"`
	Shape    []int             `json:"shape"`
	Elements int64             `json:"elements"`
	Bytes    int64             `json:"bytes"`
}

type inspectReport struct {
	Path     string            `json:"path"`
	Config   *model.Config     `json:"config,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Tensors  []tensorEntry     `json:"tensors"`
	Elements int64             `json:"elements"`
	Bytes    int64             `json:"bytes"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "List the tensors of a checkpoint",
		ArgsUsage: "<checkpoint dir | model.safetensors>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("inspect: checkpoint path required")
			}
			report, err := inspect(path)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(os.Stdout, report)
		},
	}
}

func inspect(path string) (*inspectReport, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	report := &inspectReport{Path: path}
	weights := path
	if st.IsDir() {
		weights = filepath.Join(path, "model.safetensors")
		if cfg, err := model.LoadConfig(filepath.Join(path, "config.json")); err == nil {
			report.Config = &cfg
		}
	}

	r, err := safetensors.Open(weights)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	report.Metadata = r.Metadata()
	names := r.Names()
	slices.Sort(names)
	for _, name := range names {
		info, err := r.Info(name)
		if err != nil {
			return nil, err
		}
		elements := int64(1)
		for _, d := range info.Shape {
			elements *= int64(d)
		}
		report.Tensors = append(report.Tensors, tensorEntry{
			Name:     name,
			DType:    info.DType,
			Shape:    info.Shape,
			Elements: elements,
			Bytes:    info.Size(),
		})
		report.Elements += elements
		report.Bytes += info.Size()
	}
	return report, nil
}

func printReport(out io.Writer, r *inspectReport) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if c := r.Config; c != nil {
		_, _ = fmt.Fprintf(w, "model: %s, %d layers, hidden %d, heads %d, vocab %d, labels %d\n",
			c.ModelType, c.NumHiddenLayers, c.HiddenSize, c.NumAttentionHeads, c.VocabSize, c.NumLabels)
	}
	_, _ = fmt.Fprintln(w, "NAME\tDTYPE\tSHAPE\tELEMENTS")
	for _, t := range r.Tensors {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", t.Name, t.DType, t.Shape, t.Elements)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	_, err := fmt.Fprintf(out, "tensors: %d, parameters: %d, bytes: %d\n", len(r.Tensors), r.Elements, r.Bytes)
	return err
}

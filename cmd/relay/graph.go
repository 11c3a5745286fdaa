// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/relay/pkg/handoff"
)

type graphResult struct {
	Format     string `json:"format"`
	Content    string `json:"content"`
	PipelineID string `json:"pipeline_id,omitempty"`
	Stages     int    `json:"stages"`
	Edges      int    `json:"edges"`
}

func newGraphCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show, validate and export pipeline definitions",
		Long: `Pipelines are addressed by domain (travel, game, career) or by the
path of a YAML or JSON definition file.`,
	}
	cmd.AddCommand(newGraphShowCmd(a), newGraphValidateCmd(a), newGraphExportCmd(a))
	return cmd
}

// loadPipeline resolves a file path or a domain of the configured catalog.
func (a *app) loadPipeline(ref string) (*handoff.Pipeline, error) {
	if _, err := os.Stat(ref); err == nil {
		return handoff.LoadFile(ref)
	}
	catalog, err := handoff.NewCatalog(a.cfg.Pipeline.DefinitionsDir)
	if err != nil {
		return nil, err
	}
	p, err := catalog.Get(ref)
	if err != nil {
		return nil, NewNotFoundError("pipeline", ref)
	}
	return p, nil
}

func newGraphShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <domain|file>",
		Short: "Print the stages of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline(args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(p)
			}

			fmt.Fprintf(a.out, "%s (%s)\n", p.ID, p.Domain)
			if p.Description != "" {
				fmt.Fprintln(a.out, p.Description)
			}
			fmt.Fprintln(a.out)
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTAGE\tAGENT\tREADS\tINPUTS\tOPTIONAL")
			for i, s := range p.Stages {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%v\n", i+1, s.ID, s.Agent,
					strings.Join(s.Reads, ","), strings.Join(s.Inputs, ","), s.Optional)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			for _, e := range p.Edges {
				cond := e.Condition
				if cond == "" {
					cond = "always"
				}
				fmt.Fprintf(a.out, "  %s -> %s [%s]\n", e.From, e.To, cond)
			}
			return nil
		},
	}
}

func newGraphValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <domain|file>",
		Short: "Check that a pipeline is well-formed and acyclic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline(args[0])
			if err != nil {
				var ce *CLIError
				if stderrors.As(err, &ce) {
					return err
				}
				return NewInvalidArgumentError("pipeline", err.Error())
			}
			if err := p.Validate(); err != nil {
				return NewInvalidArgumentError("pipeline", err.Error())
			}
			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(map[string]any{"pipeline_id": p.ID, "valid": true})
			}
			fmt.Fprintf(a.out, "pipeline %s is valid (%d stages, %d edges)\n", p.ID, len(p.Stages), len(p.Edges))
			return nil
		},
	}
}

func newGraphExportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <domain|file>",
		Short: "Export a pipeline as mermaid, dot, json or yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPipeline(args[0])
			if err != nil {
				return err
			}
			result := graphResult{
				Format:     format,
				PipelineID: p.ID,
				Stages:     len(p.Stages),
				Edges:      len(p.Edges),
			}

			switch format {
			case "mermaid":
				result.Content = handoff.ToMermaid(p)
			case "dot":
				result.Content = handoff.ToDot(p)
			case "json":
				data, err := handoff.MarshalJSON(p, true)
				if err != nil {
					return err
				}
				result.Content = string(data)
			case "yaml":
				data, err := handoff.MarshalYAML(p)
				if err != nil {
					return err
				}
				result.Content = string(data)
			default:
				return NewInvalidArgumentError("format", fmt.Sprintf("unknown output format %q; use mermaid, dot, json or yaml", format))
			}

			if a.jsonOut {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintln(a.out, strings.TrimRight(result.Content, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "output format: mermaid, dot, json, yaml")
	return cmd
}

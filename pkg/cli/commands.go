// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marketlake/marketlake/internal/orchestrator"
)

// RootCmd returns the marketlake root command with run/plan/compact/
// view-refresh wired as subcommands (§6 "CLI surface").
func RootCmd() *cobra.Command {
	var (
		configPath string
		schemaPath string
	)

	root := &cobra.Command{
		Use:   "marketlake",
		Short: "Incremental market-data ingestion pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the pipeline configuration document")
	root.PersistentFlags().StringVar(&schemaPath, "schema", "tables.yaml", "Path to the table schema registry document")

	root.AddCommand(runCmd(&configPath, &schemaPath))
	root.AddCommand(planCmd(&configPath, &schemaPath))
	root.AddCommand(compactCmd(&configPath, &schemaPath))
	root.AddCommand(viewRefreshCmd(&configPath, &schemaPath))
	return root
}

func runCmd(configPath, schemaPath *string) *cobra.Command {
	var overrideEntities []string

	cmd := &cobra.Command{
		Use:   "run <group>",
		Short: "Plan, fetch, and persist one task group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := Bootstrap(ctx, *configPath, *schemaPath)
			if err != nil {
				return err
			}

			groupName := args[0]
			group, err := app.GroupConfig(groupName)
			if err != nil {
				app.Close()
				return err
			}

			fmt.Println(checkMark + "Running group " + groupName + "...")
			summary, err := app.Orchestrator.Run(ctx, group, groupName, overrideEntities)
			app.Close()
			if err != nil {
				fmt.Fprintln(os.Stderr, errorStyle+err.Error())
				return err
			}
			printSummary(groupName, summary)
			os.Exit(summary.ExitCode())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&overrideEntities, "entities", nil, "Restrict this run to the given entities (marks the run partial)")
	return cmd
}

func planCmd(configPath, schemaPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <group>",
		Short: "Print the jobs a run would execute, without executing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := Bootstrap(ctx, *configPath, *schemaPath)
			if err != nil {
				return err
			}
			defer app.Close()

			groupName := args[0]
			group, err := app.GroupConfig(groupName)
			if err != nil {
				return err
			}

			jobs, err := app.Orchestrator.Planner.Plan(ctx, group, nil)
			if err != nil {
				fmt.Fprintln(os.Stderr, errorStyle+err.Error())
				return err
			}
			for _, job := range jobs {
				fmt.Printf("%s\t%s\t%s\n", job.Table, job.Entity, job.StartDate)
			}
			fmt.Println(checkMark + fmt.Sprintf("%d jobs planned for group %s", len(jobs), groupName))
			return nil
		},
	}
}

func compactCmd(configPath, schemaPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Run one maintenance cycle (compaction) immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := Bootstrap(ctx, *configPath, *schemaPath)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Scheduler.RunOnce(ctx)
			fmt.Println(checkMark + "Maintenance cycle complete")
			return nil
		},
	}
}

func viewRefreshCmd(configPath, schemaPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "view-refresh",
		Short: "Refresh every table's DuckDB view immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := Bootstrap(ctx, *configPath, *schemaPath)
			if err != nil {
				return err
			}
			defer app.Close()

			refreshed, err := app.ViewRefresh.RefreshAll(ctx, app.Registry.List())
			if err != nil {
				fmt.Fprintln(os.Stderr, errorStyle+err.Error())
				return err
			}
			if len(refreshed) == 0 {
				fmt.Println(warningStyle + "No views needed refreshing")
				return nil
			}
			fmt.Println(checkMark + fmt.Sprintf("Refreshed views: %v", refreshed))
			return nil
		},
	}
}

func printSummary(groupName string, summary orchestrator.Summary) {
	status := successStyle + "completed"
	if summary.ExitCode() != 0 {
		status = warningStyle + "completed with issues"
	}
	body := fmt.Sprintf(
		"group %s: %s (exit %d)\nsucceeded=%d failed=%d empty=%d",
		groupName, status, summary.ExitCode(), sumValues(summary.Succeeded), sumValues(summary.Failed), sumValues(summary.Empty),
	)
	fmt.Println(summaryBoxStyle.Render(body))
}

func sumValues(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

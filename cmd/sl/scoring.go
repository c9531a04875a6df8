package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"staffline/internal/app"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/export"
)

// rubricFromWeights builds a rubric from name=weight pairs. Criteria left
// out, or given a zero weight, are disabled.
func rubricFromWeights(weights map[string]int) (domain.Rubric, error) {
	var r domain.Rubric
	for name, w := range weights {
		c := domain.Criterion{Weight: w, Enabled: w > 0}
		switch domain.CriterionName(strings.ToLower(strings.TrimSpace(name))) {
		case domain.CriterionSkills:
			r.Skills = c
		case domain.CriterionExperience:
			r.Experience = c
		case domain.CriterionAvailability:
			r.Availability = c
		case domain.CriterionLocation:
			r.Location = c
		default:
			return r, fmt.Errorf("unknown criterion %q (want skills, experience, availability or location)", name)
		}
	}
	return r, r.Validate()
}

func scoreCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "score",
		Short: "Rank candidates against a job description",
		Long:  "Scores the whole candidate base with a weighted rubric (skills, experience, availability, location). When the ranking backend is off or fails, candidates keep their stored order with zero scores.",
	}
	s.AddCommand(scoreRankCmd())
	return s
}

func scoreRankCmd() *cobra.Command {
	var job, jobFile, presetID, out string
	var weights map[string]int
	var limit int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the candidate base",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile != "" {
				data, err := os.ReadFile(jobFile)
				if err != nil {
					return err
				}
				job = string(data)
			}
			in := engine.RankInput{JobDescription: job, PresetID: presetID}
			if len(weights) > 0 {
				r, err := rubricFromWeights(weights)
				if err != nil {
					return err
				}
				in.Rubric = &r
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rk, err := rt.Engine.RankCandidates(ctx, rt.Agency.ID, in)
				if err != nil {
					return err
				}
				if out != "" {
					path, err := export.Ranking(rk, job, out)
					if err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
				}
				if viper.GetBool("json") {
					return printJSON(rk)
				}
				if rk.Fallback {
					fmt.Printf("Fallback ranking: %s\n", rk.Reason)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Candidate", "City", "Score", "Skills", "Exp.", "Avail.", "Loc.", "Reason"})
				for i, r := range rk.Results {
					if limit > 0 && i >= limit {
						break
					}
					b := r.Breakdown
					tw.AppendRow(table.Row{
						i + 1, r.Candidate.FullName(), r.Candidate.City,
						fmt.Sprintf("%.1f/%d", r.Score, rk.MaxScore),
						fmt.Sprintf("%.1f", b.Skills), fmt.Sprintf("%.1f", b.Experience),
						fmt.Sprintf("%.1f", b.Availability), fmt.Sprintf("%.1f", b.Location),
						r.Reason,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "job description")
	cmd.Flags().StringVar(&jobFile, "job-file", "", "read the job description from a file")
	cmd.Flags().StringVar(&presetID, "preset", "", "scoring preset id (default: agency default preset)")
	cmd.Flags().StringToIntVar(&weights, "weight", nil, "criterion weights, e.g. skills=50,experience=30")
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the first n rows")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the ranking to an .xlsx file")
	cmd.MarkFlagsMutuallyExclusive("job", "job-file")
	cmd.MarkFlagsOneRequired("job", "job-file")
	return cmd
}

func presetCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "preset",
		Short: "Manage scoring presets",
		Long:  "Presets are named rubrics. The default preset is used when a ranking names none.",
	}
	p.AddCommand(presetSaveCmd())
	p.AddCommand(presetListCmd())
	p.AddCommand(presetDefaultCmd())
	p.AddCommand(presetDeleteCmd())
	return p
}

func presetSaveCmd() *cobra.Command {
	var in engine.PresetInput
	var weights map[string]int
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a scoring preset",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Rubric = domain.DefaultRubric()
			if len(weights) > 0 {
				r, err := rubricFromWeights(weights)
				if err != nil {
					return err
				}
				in.Rubric = r
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.SavePreset(ctx, rt.Agency.ID, in, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "preset name")
	cmd.Flags().StringVar(&in.JobType, "job-type", "", "job type the preset is meant for")
	cmd.Flags().StringToIntVar(&weights, "weight", nil, "criterion weights (default 40/30/20/10)")
	cmd.Flags().BoolVar(&in.IsDefault, "default", false, "make it the agency default")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func presetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scoring presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListPresets(ctx, rt.Agency.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Job type", "Skills", "Exp.", "Avail.", "Loc.", "Default"})
				for _, p := range items {
					tw.AppendRow(table.Row{
						p.ID, p.Name, p.JobType,
						weightCell(p.Rubric.Skills), weightCell(p.Rubric.Experience),
						weightCell(p.Rubric.Availability), weightCell(p.Rubric.Location),
						p.IsDefault,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func weightCell(c domain.Criterion) string {
	if !c.Enabled {
		return "-"
	}
	return fmt.Sprint(c.Weight)
}

func presetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default <preset-id>",
		Short: "Make a preset the agency default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.SetDefaultPreset(ctx, rt.Agency.ID, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Preset %s is now the default\n", args[0])
				return nil
			})
		},
	}
}

func presetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <preset-id>",
		Short: "Delete a scoring preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.DeletePreset(ctx, rt.Agency.ID, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Deleted preset %s\n", args[0])
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline statistics for the agency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				st, err := rt.Engine.Stats(ctx, rt.Agency.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Active pipelines", "Messages sent", "Pending replies", "Validated"})
				tw.AppendRow(table.Row{st.ActivePipelines, st.MessagesSent, st.PendingReplies, st.Validated})
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for integrations",
		Long:  "API keys authenticate the HTTP API with X-Api-Key. A key acts for one actor in one agency; only its hash is stored.",
	}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name, keyActor string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyActor == "" {
				keyActor = actorID()
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				key, secret, err := rt.Engine.CreateAPIKey(ctx, rt.Agency.ID, keyActor, name, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"api_key": key, "key": secret})
				}
				fmt.Printf("Key %s for %s:\n%s\n", key.ID, key.ActorID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label")
	cmd.Flags().StringVar(&keyActor, "for", "", "actor the key acts as (default --actor-id)")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var keyActor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListAPIKeys(ctx, rt.Agency.ID, keyActor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&keyActor, "for", "", "actor filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.DeleteAPIKey(ctx, rt.Agency.ID, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("Revoked API key %s\n", args[0])
				return nil
			})
		},
	}
}

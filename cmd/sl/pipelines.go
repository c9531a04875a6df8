package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"staffline/internal/app"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/export"
	"staffline/internal/inbound"
)

func missionCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long:  "A mission is a client's need for a number of people. Creating it opens its pipeline in WAITING_AGENCY.",
	}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionUpdateCmd())
	m.AddCommand(missionDeleteCmd())
	return m
}

func parseChannels(raw []string) ([]domain.Channel, error) {
	var out []domain.Channel
	for _, r := range raw {
		ch, ok := domain.ParseChannel(r)
		if !ok {
			return nil, fmt.Errorf("invalid channel %q", r)
		}
		out = append(out, ch)
	}
	return out, nil
}

func missionCreateCmd() *cobra.Command {
	var in engine.MissionInput
	var channels []string
	var start, end string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission and its pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			chs, err := parseChannels(channels)
			if err != nil {
				return err
			}
			in.Channels = chs
			in.StartDate = optionalString(start)
			in.EndDate = optionalString(end)
			in.Source = engine.SourceManual
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, pl, err := rt.Engine.CreateMission(ctx, rt.Agency.ID, in, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"mission": m, "pipeline": pl})
			})
		},
	}
	cmd.Flags().StringVar(&in.ClientID, "client-id", "", "client id")
	cmd.Flags().StringVar(&in.ClientName, "client", "", "client name (found or created when --client-id is empty)")
	cmd.Flags().StringVar(&in.Title, "title", "", "mission title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Location, "location", "", "location")
	cmd.Flags().IntVar(&in.Target, "target", 0, "people needed (default pipeline.default_target)")
	cmd.Flags().StringSliceVar(&in.RequiredSkills, "skill", nil, "required skill (repeatable)")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "SMS, WHATSAPP, EMAIL or PORTAL (default pipeline.default_channels)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func missionListCmd() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListMissions(ctx, rt.Agency.ID, clientID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Client", "Location", "Target", "Status"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Title, m.ClientID, m.Location, m.TargetOrDefault(), m.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "client filter")
	return cmd
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission with its client and pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Engine.Mission(ctx, rt.Agency.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func missionUpdateCmd() *cobra.Command {
	var title, description, location, status, start, end string
	var target int
	var skills, channels []string
	cmd := &cobra.Command{
		Use:   "update <mission-id>",
		Short: "Update a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch engine.MissionPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("location") {
				patch.Location = &location
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if flags.Changed("target") {
				patch.Target = &target
			}
			if flags.Changed("skill") {
				patch.RequiredSkills = &skills
			}
			if flags.Changed("channel") {
				chs, err := parseChannels(channels)
				if err != nil {
					return err
				}
				patch.Channels = &chs
			}
			if flags.Changed("start") {
				patch.StartDate = &start
			}
			if flags.Changed("end") {
				patch.EndDate = &end
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := rt.Engine.UpdateMission(ctx, rt.Agency.ID, args[0], patch, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&status, "status", "", "mission status")
	cmd.Flags().IntVar(&target, "target", 0, "people needed")
	cmd.Flags().StringSliceVar(&skills, "skill", nil, "required skills (replaces the list)")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "channels (replaces the list)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	return cmd
}

func missionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <mission-id>",
		Short: "Delete a mission without active outreach",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.DeleteMission(ctx, rt.Agency.ID, args[0], actorID()); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Printf("Deleted mission %s\n", args[0])
				return nil
			})
		},
	}
}

func pipelineCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "pipeline",
		Short: "Run recruitment pipelines",
		Long: `A pipeline moves WAITING_AGENCY -> RUNNING -> WAITING_CLIENT -> COMPLETED.
Launching with no eligible candidate raises ALERT; launching again retries.`,
	}
	p.AddCommand(pipelineLaunchCmd())
	p.AddCommand(pipelineShowCmd())
	p.AddCommand(pipelineExpireCmd())
	p.AddCommand(pipelineExportCmd())
	return p
}

func pipelineLaunchCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "launch <pipeline-id>",
		Short: "Shortlist available candidates and send the outreach",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Engine.Pipeline(ctx, rt.Agency.ID, args[0])
				if err != nil {
					return err
				}
				if !yes && !viper.GetBool("json") {
					ok, err := confirm(fmt.Sprintf("Message candidates for %q (target %d, via %s)", d.Mission.Title, d.Mission.TargetOrDefault(), channelList(d.Mission.Channels)))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Println("Launch cancelled")
						return nil
					}
				}
				res, err := rt.Engine.Launch(ctx, rt.Agency.ID, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Pipeline %s: %s\n", res.Pipeline.ID, res.Pipeline.Status)
				fmt.Printf("Admitted %d (requested %d, already in %d)", len(res.Admitted), res.Requested, res.AlreadyIn)
				if res.Fallback {
					fmt.Print(", shortlist by fallback order")
				}
				fmt.Println()
				fmt.Printf("Messages: %d sent, %d failed, %d skipped\n", res.Delivery.Sent, res.Delivery.Failed, res.Delivery.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on the terminal. Anything but "y" is a no.
func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func channelList(chs []domain.Channel) string {
	names := make([]string, 0, len(chs))
	for _, c := range chs {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func pipelineShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <pipeline-id>",
		Short: "Show a pipeline and its participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Engine.Pipeline(ctx, rt.Agency.ID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Mission:  %s (%s)\n", d.Mission.Title, d.Mission.ID)
				fmt.Printf("Pipeline: %s [%s]\n", d.Pipeline.ID, d.Pipeline.Status)
				fmt.Printf("Quota:    %d/%d validated\n", d.Quota.Validated, d.Quota.Target)
				tw := newTable()
				tw.AppendHeader(table.Row{"Participant", "Candidate", "Outreach", "Proposed", "Decision", "Visibility"})
				for _, p := range d.Participants {
					tw.AppendRow(table.Row{p.ID, p.Candidate.FullName(), p.OutreachStatus, p.ProposedToClient, decisionLabel(p.Participant), p.Visibility})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func decisionLabel(p domain.Participant) string {
	switch {
	case p.ClientValidated:
		return "validated"
	case p.ClientRefused:
		return "refused"
	case p.ProposedToClient:
		return "pending"
	}
	return ""
}

func pipelineExpireCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "expire <pipeline-id>",
		Short: "Mark unanswered outreach as NO_RESPONSE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				n, err := rt.Engine.ExpireOutreach(ctx, rt.Agency.ID, args[0], olderThan, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"pipeline_id": args[0], "expired": n})
				}
				fmt.Printf("Expired %d participant(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 48*time.Hour, "age of unanswered outreach")
	return cmd
}

func pipelineExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <pipeline-id>",
		Short: "Export a pipeline's participants to .xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Engine.Pipeline(ctx, rt.Agency.ID, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					out = "pipeline-" + d.Pipeline.ID
				}
				path, err := export.Pipeline(d, out)
				if err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}

func participantCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "participant",
		Short: "Propose participants and record client decisions",
	}
	p.AddCommand(participantProposeCmd())
	p.AddCommand(participantDecisionCmd("validate", true))
	p.AddCommand(participantDecisionCmd("refuse", false))
	p.AddCommand(participantVisibilityCmd())
	return p
}

func participantProposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "propose <participant-id>",
		Short: "Propose a participant to the client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.Propose(ctx, rt.Agency.ID, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func participantDecisionCmd(name string, validate bool) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   name + " <participant-id>",
		Short: strings.ToUpper(name[:1]) + name[1:] + " a proposed participant on the client's behalf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.ClientRespond(ctx, rt.Agency.ID, args[0], engine.Decision{
					Validate: validate,
					Comment:  comment,
					Source:   "agency",
				}, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "client comment")
	return cmd
}

func participantVisibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "visibility <participant-id> <FULL|PARTIAL|ANONYMOUS>",
		Short: "Set how much of the candidate the client sees",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := domain.ParseVisibility(args[1])
			if !ok {
				return fmt.Errorf("invalid visibility %q", args[1])
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.SetVisibility(ctx, rt.Agency.ID, args[0], level, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func inboundCmd() *cobra.Command {
	i := &cobra.Command{
		Use:   "inbound",
		Short: "Inbound messages",
	}
	i.AddCommand(inboundSimulateCmd())
	return i
}

func inboundSimulateCmd() *cobra.Command {
	var msg inbound.Message
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply a message as if the provider had posted it",
		Long:  "Runs the same interpretation as the webhook. A sender matching a candidate in a running pipeline wins over a client.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				out, err := rt.Inbound.Handle(ctx, rt.Agency.ID, msg)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Outcome: %s", out.Kind)
				if out.Transition != "" {
					fmt.Printf(" (%s)", out.Transition)
				}
				fmt.Println()
				if out.Reply != "" {
					fmt.Printf("Read as: %s\n", out.Reply)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&msg.From, "from", "", "sender phone number")
	cmd.Flags().StringVar(&msg.Body, "body", "", "message text")
	cmd.Flags().StringVar(&msg.MessageID, "message-id", "", "provider message id (generated when empty)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

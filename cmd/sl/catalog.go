package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"staffline/internal/app"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/server"
)

func candidateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "candidate",
		Short: "Manage candidates",
		Long:  "Candidates are the people the agency places. Only AVAILABLE candidates are shortlisted when a pipeline launches.",
	}
	c.AddCommand(candidateAddCmd())
	c.AddCommand(candidateListCmd())
	c.AddCommand(candidateAvailabilityCmd())
	return c
}

func candidateAddCmd() *cobra.Command {
	var in engine.CandidateInput
	var availability string
	var experience int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if availability != "" {
				a, ok := domain.ParseAvailability(availability)
				if !ok {
					return fmt.Errorf("invalid availability %q", availability)
				}
				in.Availability = a
			}
			if cmd.Flags().Changed("experience") {
				in.ExperienceYears = &experience
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Engine.CreateCandidate(ctx, rt.Agency.ID, in, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&in.City, "city", "", "city")
	cmd.Flags().StringSliceVar(&in.Skills, "skill", nil, "skill (repeatable or comma-separated)")
	cmd.Flags().IntVar(&experience, "experience", 0, "years of experience")
	cmd.Flags().StringVar(&availability, "availability", "", "AVAILABLE, BUSY or UNAVAILABLE")
	_ = cmd.MarkFlagRequired("first-name")
	return cmd
}

func candidateListCmd() *cobra.Command {
	var availability string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.Availability
			if availability != "" {
				a, ok := domain.ParseAvailability(availability)
				if !ok {
					return fmt.Errorf("invalid availability %q", availability)
				}
				filter = a
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListCandidates(ctx, rt.Agency.ID, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Phone", "City", "Skills", "Availability"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.FullName(), c.Phone, c.City, strings.Join(c.Skills, ", "), c.Availability})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&availability, "availability", "", "availability filter")
	return cmd
}

func candidateAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "availability <candidate-id> <AVAILABLE|BUSY|UNAVAILABLE>",
		Short: "Set a candidate's availability",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok := domain.ParseAvailability(args[1])
			if !ok {
				return fmt.Errorf("invalid availability %q", args[1])
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Engine.SetAvailability(ctx, rt.Agency.ID, args[0], a, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func clientCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "client",
		Short: "Manage clients",
		Long:  "Clients receive proposals by message and through their portal link.",
	}
	c.AddCommand(clientAddCmd())
	c.AddCommand(clientListCmd())
	c.AddCommand(clientTokenCmd())
	return c
}

func clientAddCmd() *cobra.Command {
	var in engine.ClientInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Engine.CreateClient(ctx, rt.Agency.ID, in, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "company name")
	cmd.Flags().StringVar(&in.ContactName, "contact", "", "contact name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func clientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListClients(ctx, rt.Agency.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Contact", "Phone", "Email"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.ContactName, c.Phone, c.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func clientTokenCmd() *cobra.Command {
	var rotate bool
	cmd := &cobra.Command{
		Use:   "token <client-id>",
		Short: "Show (or rotate) a client's portal token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				token, err := rt.Engine.PortalToken(ctx, rt.Agency.ID, args[0], rotate, actorID())
				if err != nil {
					return err
				}
				url := server.PortalURL(rt.Config.Server.PublicURL, rt.Config.Server.BasePath, token)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"client_id": args[0], "token": token, "url": url})
				}
				fmt.Println(token)
				if url != "" {
					fmt.Println(url)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&rotate, "rotate", false, "issue a new token, revoking the old link")
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/relay/pkg/game"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/session"
)

// startSession runs req to completion and reports a failed session as an
// error so that the exit status reflects it.
func (a *app) startSession(ctx context.Context, req session.Request) (session.View, *runtime, error) {
	rt, err := a.newRuntime(ctx, a.sink())
	if err != nil {
		return session.View{}, nil, err
	}
	view, err := rt.manager.Start(ctx, req)
	if err != nil {
		rt.Close()
		return view, nil, err
	}
	if view.Status == session.StatusFailed {
		rt.Close()
		return view, nil, NewFailedSessionError(view.ID, view.FailedStage, view.LastError)
	}
	if !a.jsonOut {
		fmt.Fprintf(a.out, "\nsession %s\n", view.ID)
	}
	return view, rt, nil
}

func newPlanCmd(a *app) *cobra.Command {
	var (
		t    session.TravelRequest
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a trip",
		Example: `  relay plan --mood culture --budget moderate --travelers 2
  relay plan --mood beach --start 2026-07-01 --end 2026-07-08 --prefer Lisbon`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rt, err := a.startSession(cmd.Context(), session.Request{
				Domain: session.DomainTravel,
				Seed:   seed,
				Travel: &t,
			})
			if err != nil {
				return err
			}
			return rt.Close()
		},
	}
	f := cmd.Flags()
	f.StringVar(&t.UserName, "name", "", "traveler name")
	f.StringVar((*string)(&t.Mood), "mood", "", "trip mood: "+joinMoods())
	f.StringVar((*string)(&t.Budget), "budget", string(session.BudgetModerate), "budget, moderate or luxury")
	f.IntVar(&t.Travelers, "travelers", 1, "number of travelers")
	f.StringVar(&t.StartDate, "start", "", "start date (YYYY-MM-DD)")
	f.StringVar(&t.EndDate, "end", "", "end date (YYYY-MM-DD)")
	f.StringSliceVar(&t.Preferences, "prefer", nil, "preferred destinations")
	f.StringSliceVar(&t.SpecialRequirements, "require", nil, "special requirements")
	f.Int64Var(&seed, "seed", 0, "seed for tool and offline data")
	_ = cmd.MarkFlagRequired("mood")
	return cmd
}

func joinMoods() string {
	names := make([]string, len(session.Moods))
	for i, m := range session.Moods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func newCareerCmd(a *app) *cobra.Command {
	var (
		c    session.CareerRequest
		seed int64
	)
	cmd := &cobra.Command{
		Use:     "career",
		Short:   "Build a career plan",
		Example: `  relay career --interest "machine learning" --skill python --experience beginner`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rt, err := a.startSession(cmd.Context(), session.Request{
				Domain: session.DomainCareer,
				Seed:   seed,
				Career: &c,
			})
			if err != nil {
				return err
			}
			return rt.Close()
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&c.Interests, "interest", nil, "interests")
	f.StringSliceVar(&c.Skills, "skill", nil, "current skills")
	f.StringVar(&c.Experience, "experience", "", "beginner, intermediate or advanced")
	f.StringVar(&c.Query, "query", "", "free-form question")
	f.Int64Var(&seed, "seed", 0, "seed for tool and offline data")
	return cmd
}

func newGameCmd(a *app) *cobra.Command {
	var (
		savePath string
		name     string
		weapon   int
		seed     int64
	)
	cmd := &cobra.Command{
		Use:   "game <action>",
		Short: "Play one turn of the text adventure",
		Long: `Play one turn. The player is loaded from the save file, the turn's
plan is applied to it and the result is saved back.`,
		Example: `  relay game attack the goblin
  relay game --save hero.json explore the cave`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			state, err := game.Load(savePath, name)
			if err != nil {
				return err
			}

			// Without a configured seed every turn rolls differently.
			if seed == 0 && a.cfg.Pipeline.Seed == 0 {
				seed = time.Now().UnixNano()
			}
			view, rt, err := a.startSession(ctx, state.Request(strings.Join(args, " "), weapon, seed))
			if err != nil {
				return err
			}
			defer rt.Close()

			plan, err := rt.manager.Plan(ctx, view.ID)
			if err != nil {
				return err
			}
			outcome, err := state.Apply(plan, plan.CreatedAt)
			if err != nil {
				return err
			}
			if err := state.Save(savePath); err != nil {
				return err
			}

			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(map[string]any{
					"outcome": outcome,
					"player":  state.Player,
				})
			}
			printOutcome(a, outcome)
			fmt.Fprintln(a.out, state.Player.Status())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&savePath, "save", ".relay/game.json", "save file")
	f.StringVar(&name, "name", "", "player name for a new game")
	f.IntVar(&weapon, "weapon", 5, "weapon power")
	f.Int64Var(&seed, "seed", 0, "seed for combat and loot rolls (default random)")
	return cmd
}

func printOutcome(a *app, o game.Outcome) {
	switch {
	case o.Defeated:
		fmt.Fprintf(a.out, "Victory! +%d xp\n", o.XPGained)
	case o.XPGained > 0:
		fmt.Fprintf(a.out, "+%d xp\n", o.XPGained)
	}
	if o.DamageTaken > 0 {
		fmt.Fprintf(a.out, "You took %d damage.\n", o.DamageTaken)
	}
	if o.GoldGained > 0 {
		fmt.Fprintf(a.out, "Found %d gold.\n", o.GoldGained)
	}
	if o.Item != "" {
		fmt.Fprintf(a.out, "Found %s!\n", o.Item)
	}
	if o.LeveledUp {
		fmt.Fprintln(a.out, "Level up!")
	}
	if o.Fallen {
		fmt.Fprintln(a.out, "You fell and wake up in the village.")
	}
}

func newConsultCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "consult <question>",
		Short:   "Ask one career question without starting a session",
		Example: `  relay consult "which skills should I learn for data science?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.newRuntime(ctx, present.Nop{})
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.manager.Consult(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(res)
			}
			fmt.Fprintln(a.out, present.RenderResultText(res))
			return nil
		},
	}
}

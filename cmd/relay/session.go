package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/session"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a saved session and its plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.newRuntime(ctx, present.Nop{})
			if err != nil {
				return err
			}
			defer rt.Close()

			view, err := rt.manager.View(ctx, args[0])
			if err != nil {
				if errors.IsCode(err, errors.CodeNotFound) {
					return NewNotFoundError("session", args[0])
				}
				return err
			}
			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(view)
			}
			fmt.Fprintf(a.out, "session %s  %s  %s\n", view.ID, view.Domain, view.Status)
			present.NewConsole(a.out).Snapshot(view)
			if view.Plan != nil {
				fmt.Fprintln(a.out)
				fmt.Fprintln(a.out, present.RenderPlanText(*view.Plan))
			}
			return nil
		},
	}
}

// modifyFlags are the request fields modify can change. Only flags the
// user actually set are applied.
type modifyFlags struct {
	mood       string
	budget     string
	travelers  int
	start      string
	end        string
	experience string
	interests  []string
	action     string
	from       string
}

func newModifyCmd(a *app) *cobra.Command {
	var mf modifyFlags
	cmd := &cobra.Command{
		Use:   "modify <session-id>",
		Short: "Change a session's request and rerun the stages it affects",
		Long: `Change a session's request. Stages that do not depend on the changed
fields keep their results; the first affected stage and everything after
it run again. With --from the session is handed off to that stage directly.`,
		Example: `  relay modify 4f0c... --budget luxury
  relay modify 4f0c... --from booking`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			rt, err := a.newRuntime(ctx, a.sink())
			if err != nil {
				return err
			}
			defer rt.Close()

			var view session.View
			if mf.from != "" {
				view, err = rt.manager.Handoff(ctx, id, mf.from)
			} else {
				current, verr := rt.manager.View(ctx, id)
				if verr != nil {
					if errors.IsCode(verr, errors.CodeNotFound) {
						return NewNotFoundError("session", id)
					}
					return verr
				}
				req, changed := applyModify(cmd, current.Request, mf)
				if !changed {
					return NewInvalidArgumentError("flags", "nothing to modify; set a request flag or --from")
				}
				view, err = rt.manager.Modify(ctx, id, req)
			}
			if err != nil {
				return err
			}
			if view.Status == session.StatusFailed {
				return NewFailedSessionError(view.ID, view.FailedStage, view.LastError)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&mf.mood, "mood", "", "new trip mood")
	f.StringVar(&mf.budget, "budget", "", "new trip budget")
	f.IntVar(&mf.travelers, "travelers", 0, "new number of travelers")
	f.StringVar(&mf.start, "start", "", "new start date (YYYY-MM-DD)")
	f.StringVar(&mf.end, "end", "", "new end date (YYYY-MM-DD)")
	f.StringVar(&mf.experience, "experience", "", "new career experience level")
	f.StringSliceVar(&mf.interests, "interest", nil, "new career interests")
	f.StringVar(&mf.action, "action", "", "new game action")
	f.StringVar(&mf.from, "from", "", "rerun the session from this stage")
	return cmd
}

// applyModify returns a copy of req with the set flags applied.
func applyModify(cmd *cobra.Command, req session.Request, mf modifyFlags) (session.Request, bool) {
	out := req.Clone()
	set := cmd.Flags().Changed
	changed := false
	if t := out.Travel; t != nil {
		if set("mood") {
			t.Mood, changed = session.Mood(mf.mood), true
		}
		if set("budget") {
			t.Budget, changed = session.Budget(mf.budget), true
		}
		if set("travelers") {
			t.Travelers, changed = mf.travelers, true
		}
		if set("start") {
			t.StartDate, changed = mf.start, true
		}
		if set("end") {
			t.EndDate, changed = mf.end, true
		}
	}
	if c := out.Career; c != nil {
		if set("experience") {
			c.Experience, changed = mf.experience, true
		}
		if set("interest") {
			c.Interests, changed = mf.interests, true
		}
	}
	if g := out.Game; g != nil && set("action") {
		g.Action, changed = mf.action, true
	}
	return out, changed
}

func newAuditCmd(a *app) *cobra.Command {
	var filter handoff.AuditFilter
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded stage attempts",
		Long: `List stage attempts recorded in the audit log. Attempts are only kept
across runs when audit.enabled is true.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Audit.Enabled {
				return NewCLIError(errors.New(errors.CodeValidation, "audit log is disabled", nil),
					"run with --set audit.enabled=true or set RELAY_AUDIT_ENABLED=true")
			}
			store, closeStore, err := openAudit(a.cfg.Audit)
			if err != nil {
				return err
			}
			defer closeStore()

			events, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return json.NewEncoder(a.out).Encode(events)
			}
			return printAudit(a, events)
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.SessionID, "session", "", "only this session")
	f.StringVar(&filter.PipelineID, "pipeline", "", "only this pipeline")
	f.StringVar(&filter.Stage, "stage", "", "only this stage")
	f.StringVar(&filter.Status, "status", "", "completed, failed, fallback or terminal")
	f.IntVar(&filter.Limit, "limit", 50, "maximum events")
	return cmd
}

func printAudit(a *app, events []handoff.AuditEvent) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tSTAGE\tATTEMPT\tSTATUS\tSOURCE\tDURATION\tERROR")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime),
			e.SessionID,
			e.Stage,
			e.Attempt,
			e.Status,
			e.Source,
			e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond),
			e.Error,
		)
	}
	return w.Flush()
}

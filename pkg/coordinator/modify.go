package coordinator

import (
	"context"
	"fmt"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/session"
)

// Modify replaces the session request and reruns from the first stage
// whose declared inputs changed. Stages before it keep their results and
// are not invoked again. A change that touches no stage input leaves a
// COMPLETE session and its plan as they are.
func (c *Coordinator) Modify(ctx context.Context, req session.Request) (session.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state
	if st == nil {
		return session.View{}, errors.New(errors.CodeNotFound, "session not started", nil)
	}
	if req.Domain == "" {
		req.Domain = st.Domain
	}
	// A request without a seed keeps the session's seed so unaffected
	// stages stay reproducible.
	if req.Seed == 0 {
		req.Seed = st.Request.Seed
	}
	req, err := c.accept(ctx, req)
	if err != nil {
		return st.View(), err
	}

	changed := session.ChangedFields(st.Request, req)
	from := c.pipeline.Divergence(st.Order, changed)

	if from == "" && st.Status == session.StatusComplete {
		if len(changed) > 0 {
			st.Request = req
			st.Modifications++
			if err := c.persist(ctx); err != nil {
				return st.View(), err
			}
			c.publish()
		}
		c.logger.InfoContext(ctx, "modification affects no stage",
			"session_id", st.ID,
			"changed", changed,
		)
		return st.View(), nil
	}

	st.Request = req
	st.Modifications++
	cleared := st.Rewind(from, c.now())
	c.logger.InfoContext(ctx, "session modified",
		"session_id", st.ID,
		"changed", changed,
		"stage", from,
		"cleared", cleared,
	)
	if err := c.persist(ctx); err != nil {
		return st.View(), err
	}
	c.publish()
	return c.run(ctx)
}

// Handoff reruns the session from stage: stage and everything after it is
// cleared and invoked again with the current request. stage must have run
// or be the stage the session failed at.
func (c *Coordinator) Handoff(ctx context.Context, stage string) (session.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state
	if st == nil {
		return session.View{}, errors.New(errors.CodeNotFound, "session not started", nil)
	}
	if _, ok := c.pipeline.Stage(stage); !ok {
		return st.View(), errors.Validation("stage", fmt.Sprintf("stage %q is not part of pipeline %q", stage, c.pipeline.ID))
	}
	_, ran := st.Context[stage]
	if !ran && !(st.Status == session.StatusFailed && st.FailedStage == stage) {
		return st.View(), errors.Pipeline(stage, "stage has not run in this session").
			WithContext("session_id", st.ID)
	}

	st.Modifications++
	cleared := st.Rewind(stage, c.now())
	c.logger.InfoContext(ctx, "handoff requested",
		"session_id", st.ID,
		"stage", stage,
		"cleared", cleared,
	)
	if err := c.persist(ctx); err != nil {
		return st.View(), err
	}
	c.publish()
	return c.run(ctx)
}

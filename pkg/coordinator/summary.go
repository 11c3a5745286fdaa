package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/session"
)

// Summarizer writes the one-paragraph summary of a completed session. It
// never fails: a summary is decoration, not a stage.
type Summarizer func(ctx context.Context, v session.View) string

// ModelSummarizer asks the client for a summary and falls back to
// TemplateSummary when the call fails.
func ModelSummarizer(client llm.Client, opts llm.Options) Summarizer {
	return func(ctx context.Context, v session.View) string {
		if client == nil {
			return TemplateSummary(ctx, v)
		}
		var b bytes.Buffer
		fmt.Fprintf(&b, "Summarize this %s plan for the user in three sentences.\n", v.Domain)
		for _, r := range v.Results {
			data, err := json.Marshal(r.Payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", r.Stage, data)
		}
		opts.JSON = false
		text, err := client.Complete(ctx, b.String(), opts)
		text = strings.TrimSpace(text)
		if err != nil || text == "" {
			slog.Default().DebugContext(ctx, "summary falls back to template", "session_id", v.ID, "error", err)
			return TemplateSummary(ctx, v)
		}
		return text
	}
}

// TemplateSummary builds a deterministic summary from the stage payloads.
func TemplateSummary(_ context.Context, v session.View) string {
	payload := func(stage string) session.Payload {
		if r, ok := v.Context[stage]; ok {
			return r.Payload
		}
		for _, r := range v.Results {
			if r.Stage == stage {
				return r.Payload
			}
		}
		return nil
	}
	text := func(p session.Payload, keys ...string) string {
		var cur any = p
		for _, k := range keys {
			m, ok := cur.(map[string]any)
			if !ok {
				return ""
			}
			cur = m[k]
		}
		switch x := cur.(type) {
		case string:
			return x
		case float64:
			return fmt.Sprintf("%.2f", x)
		case nil:
			return ""
		default:
			return fmt.Sprint(x)
		}
	}

	switch v.Domain {
	case session.DomainTravel:
		b := payload("booking")
		dest := text(b, "destination")
		if dest == "" {
			dest = text(payload("destination"), "top")
		}
		return fmt.Sprintf("Trip to %s: %s flight %s, %s nights at %s, estimated total $%s.",
			dest, text(b, "flight", "airline"), text(b, "flight", "flight_number"),
			strings.TrimSuffix(text(b, "nights"), ".00"), text(b, "hotel", "name"), text(b, "total_cost"))
	case session.DomainGame:
		parts := []string{text(payload("narrator"), "narration")}
		if m := payload("monster"); m != nil {
			parts = append(parts, text(m, "description"))
		}
		parts = append(parts, text(payload("item"), "description"))
		return strings.TrimSpace(strings.Join(parts, " "))
	case session.DomainCareer:
		return fmt.Sprintf("Recommended path: %s. %s %s",
			text(payload("career"), "top"), text(payload("skill"), "advice"), text(payload("job"), "summary"))
	}
	return fmt.Sprintf("Session %s completed %d stages.", v.ID, len(v.Results))
}

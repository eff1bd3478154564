package postprocess

import (
	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
)

// Context is what a transform may look at besides the completion itself.
type Context struct {
	Lang   string
	Prefix string
	Suffix string
}

// Transform is one pure rewrite step. Order matters and is fixed by the
// pipeline; each transform must be idempotent.
type Transform interface {
	Name() string
	Apply(completion string, pctx Context) string
}

// Pipeline runs the transforms in order. Individual steps can be excluded by
// name through configuration.
type Pipeline struct {
	transforms []Transform
	metrics    *telemetry.Metrics
}

// NewPipeline builds the default pipeline minus the excluded step names.
func NewPipeline(metrics *telemetry.Metrics, exclude ...string) *Pipeline {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	all := []Transform{
		stripCodeFences{},
		newlineAfterComment{},
		removeReflection{},
		stripAsteriskBanner{},
		sanitizeURLs{},
		trimWhitespace{},
		redactPII{},
	}

	p := &Pipeline{metrics: metrics}
	for _, t := range all {
		if _, ok := excluded[t.Name()]; ok {
			continue
		}
		p.transforms = append(p.transforms, t)
	}
	return p
}

// Apply runs every transform in order and returns the rewritten completion.
func (p *Pipeline) Apply(completion string, pctx Context) string {
	for _, t := range p.transforms {
		out := t.Apply(completion, pctx)
		if out != completion && p.metrics != nil {
			p.metrics.PostprocessDropTotal.WithLabelValues(t.Name()).Inc()
		}
		completion = out
	}
	return completion
}

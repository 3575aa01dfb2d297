package policies

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/morezero/callguard/pkg/boundary"
	"github.com/morezero/callguard/pkg/pipeline"
)

const buildLogPrefix = "policies:build"

const rateLimitMaxKeys = 10000

// Policy names accepted by Build.
const (
	NameTracing   = "tracing"
	NameMetrics   = "metrics"
	NameRateLimit = "ratelimit"
	NameShield    = "shield"
)

// BuildParams holds the collaborators of the built-in policies. When Context
// is set the rate limiter buckets are pruned periodically until it ends.
type BuildParams struct {
	Context    context.Context
	Names      []string
	Builder    *boundary.Builder
	Registerer prometheus.Registerer
	Namespace  string
	RatePerSec float64
	RateBurst  int
	Logger     *slog.Logger
}

// Build returns interceptors for the named policies, outermost first.
func Build(params BuildParams) ([]pipeline.Interceptor, error) {
	var out []pipeline.Interceptor
	seen := make(map[string]bool)
	for _, raw := range params.Names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case NameTracing:
			out = append(out, pipeline.New[Trace](name, &Tracing{Logger: params.Logger}))
		case NameMetrics:
			m, err := NewMetrics(params.Namespace, params.Registerer)
			if err != nil {
				return nil, err
			}
			out = append(out, pipeline.New[time.Time](name, m))
		case NameRateLimit:
			rl := NewRateLimit(params.RatePerSec, params.RateBurst)
			if params.Context != nil {
				rl.StartCleanup(params.Context, time.Minute, rateLimitMaxKeys)
			}
			out = append(out, pipeline.New[struct{}](name, rl))
		case NameShield:
			out = append(out, pipeline.New[struct{}](name, &Shield{Builder: params.Builder}))
		default:
			return nil, fmt.Errorf("%s - unknown policy %q", buildLogPrefix, raw)
		}
	}
	slog.Debug(fmt.Sprintf("%s - built %d policies", buildLogPrefix, len(out)))
	return out, nil
}

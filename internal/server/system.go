package server

import (
	"context"
	"sort"
	"time"

	"github.com/morezero/callguard/pkg/db"
	"github.com/morezero/callguard/pkg/dispatcher"
	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/pipeline"
)

// System operation names.
const (
	OpHealth     = "system.health"
	OpMappings   = "system.mappings"
	OpFault      = "system.fault"
	OpOperations = "system.operations"
)

// HealthOutput is the result of system.health.
type HealthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// MappingView is one error <-> fault mapping as reported by system.mappings.
type MappingView struct {
	Policy    string `json:"policy"`
	ErrorKind string `json:"errorKind"`
	FaultKind string `json:"faultKind"`
	Status    int    `json:"status"`
}

type mappingsParams struct {
	Policy string `json:"policy"`
}

type faultParams struct {
	CorrelationID string `json:"correlationId"`
}

func (s *Server) registerSystemOperations() error {
	return s.disp.Register(
		dispatcher.Func("system", "health", func(ctx context.Context, _ struct{}) (*HealthOutput, error) {
			return s.health(ctx), nil
		}),
		dispatcher.Func("system", "mappings", func(_ context.Context, p mappingsParams) ([]MappingView, error) {
			return s.mappings(p.Policy)
		}),
		dispatcher.Func("system", "operations", func(context.Context, struct{}) ([]string, error) {
			return s.disp.Operations(), nil
		}),
		dispatcher.AsyncFunc[faultParams, *db.FaultRecord]("system", "fault", s.lookupFault),
	)
}

func (s *Server) health(ctx context.Context) *HealthOutput {
	if s.cfg != nil && s.cfg.HealthCheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HealthCheckTimeout)
		defer cancel()
	}
	out := &HealthOutput{Status: "healthy", Checks: make(map[string]bool, len(s.checks)), Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for name, check := range s.checks {
		ok := check(ctx) == nil
		out.Checks[name] = ok
		if !ok {
			out.Status = "unhealthy"
		}
	}
	return out
}

func (s *Server) mappings(policy string) ([]MappingView, error) {
	names := s.faults.Names()
	if policy != "" {
		if s.faults.Get(policy) == nil {
			return nil, faults.NewNotFoundError("no fault policy named %s", policy)
		}
		names = []string{policy}
	}
	var out []MappingView
	for _, name := range names {
		for _, m := range s.faults.Get(name).Mappings() {
			out = append(out, MappingView{
				Policy:    name,
				ErrorKind: string(m.ErrorKind),
				FaultKind: string(m.FaultKind),
				Status:    m.HTTPStatus,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Policy < out[j].Policy })
	return out, nil
}

func (s *Server) lookupFault(ctx context.Context, p faultParams) *pipeline.Future {
	if p.CorrelationID == "" {
		return pipeline.Rejected(faults.NewArgumentNilError("correlationId"))
	}
	if s.faultLog == nil {
		return pipeline.Rejected(faults.NewUnavailableError("fault log is disabled"))
	}
	return pipeline.Go(ctx, func(ctx context.Context) (any, error) {
		return s.faultLog.Lookup(ctx, p.CorrelationID)
	})
}

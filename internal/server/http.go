package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/callguard/pkg/boundary"
	"github.com/morezero/callguard/pkg/dispatcher"
	"github.com/morezero/callguard/pkg/faults"
)

// HTTP headers carrying call metadata.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderUserID        = "X-User-ID"
	HeaderFaultVersion  = "X-Fault-Version"
	HeaderCorrelationID = "X-Correlation-ID"
)

const maxBodyBytes = 1 << 20

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleHome()).Methods(http.MethodGet)
	r.HandleFunc("/ops/{name}", s.handleOperation).Methods(http.MethodPost)
	r.HandleFunc("/faults/mappings", s.handleMappings).Methods(http.MethodGet)
	r.HandleFunc("/faults/{correlationId}", s.handleFault).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)

	gatherer := s.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// handleOperation runs the named operation with the request body as params.
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r, mux.Vars(r)["name"])
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeOutcome(w, nil, s.disp.Fail(req, faults.NewIOError(err, "failed to read request body")))
		return
	}
	req.Params = body
	s.execute(w, r, req)
}

func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r, OpMappings)
	req.Params, _ = json.Marshal(mappingsParams{Policy: r.URL.Query().Get("policy")})
	s.execute(w, r, req)
}

func (s *Server) handleFault(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r, OpFault)
	req.Params, _ = json.Marshal(faultParams{CorrelationID: mux.Vars(r)["correlationId"]})
	s.execute(w, r, req)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health(r.Context())
	status := http.StatusOK
	if h.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, req *dispatcher.OperationRequest) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()
	v, fault := s.disp.Execute(ctx, req)
	s.writeOutcome(w, v, fault)
}

func (s *Server) writeOutcome(w http.ResponseWriter, v any, fault *boundary.Response) {
	if fault == nil {
		writeJSON(w, http.StatusOK, map[string]any{"result": v})
		return
	}
	w.Header().Set("Content-Type", fault.ContentType)
	w.Header().Set(HeaderFaultVersion, fault.Version)
	if fault.Fault != nil {
		w.Header().Set(HeaderCorrelationID, fault.Fault.CorrelationID)
	}
	w.WriteHeader(fault.Status)
	if _, err := w.Write(fault.Body); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to write fault body: %v", logPrefix, err))
	}
}

func requestFrom(r *http.Request, op string) *dispatcher.OperationRequest {
	return &dispatcher.OperationRequest{
		ID:           r.Header.Get(HeaderRequestID),
		Type:         "invoke",
		Op:           op,
		Endpoint:     dispatcher.EndpointHTTP,
		Accept:       r.Header.Get("Accept"),
		ContentType:  r.Header.Get("Content-Type"),
		FaultVersion: r.Header.Get(HeaderFaultVersion),
		Ctx: &dispatcher.InvocationContext{
			RequestID: r.Header.Get(HeaderRequestID),
			UserID:    r.Header.Get(HeaderUserID),
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", logPrefix, err))
	}
}

// homePageTemplate is the HTML for the home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>callguard</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>callguard</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{range $name, $ok := .Health.Checks}}<p>{{$name}}: {{if $ok}}OK{{else}}Failed{{end}}</p>{{end}}
  </section>

  <section>
    <h2>Operations</h2>
    <ul>{{range .Operations}}<li>{{.}}</li>{{end}}</ul>
  </section>

  <section>
    <h2>Fault mappings</h2>
    <table>
      <thead><tr><th>Policy</th><th>Error kind</th><th>Fault kind</th><th>Status</th></tr></thead>
      <tbody>
        {{range .Mappings}}
        <tr><td>{{.Policy}}</td><td>{{.ErrorKind}}</td><td>{{.FaultKind}}</td><td>{{.Status}}</td></tr>
        {{end}}
      </tbody>
    </table>
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health     *HealthOutput
	Operations []string
	Mappings   []MappingView
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		mappings, _ := s.mappings("")
		data := homeData{
			Health:     s.health(r.Context()),
			Operations: s.disp.Operations(),
			Mappings:   mappings,
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

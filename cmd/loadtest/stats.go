package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc/codes"
)

const scenarioMethod = "scenario"

const (
	callsMetric   = "loadtest_calls_total"
	latencyMetric = "loadtest_call_latency_ms"
)

type latencySummary struct {
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// recorder копит вызовы в собственном registry: счётчик по коду ответа
// и summary задержек, из которого берутся квантили отчёта.
type recorder struct {
	reg     *prometheus.Registry
	calls   *prometheus.CounterVec
	latency *prometheus.SummaryVec
}

func newRecorder() *recorder {
	r := &recorder{
		reg: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: callsMetric,
			Help: "RPC calls grouped by method and gRPC code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       latencyMetric,
			Help:       "RPC latency in milliseconds.",
			Objectives: map[float64]float64{0.5: 0.01, 0.95: 0.005, 0.99: 0.001},
			MaxAge:     24 * time.Hour,
		}, []string{"method"}),
	}
	r.reg.MustRegister(r.calls, r.latency)
	return r
}

func (r *recorder) record(method string, latency time.Duration, code codes.Code) {
	r.calls.WithLabelValues(method, code.String()).Inc()
	r.latency.WithLabelValues(method).Observe(float64(latency.Microseconds()) / 1000)
}

// methods собирает отчёт по каждому вызывавшемуся методу.
func (r *recorder) methods() map[string]methodReport {
	families, err := r.reg.Gather()
	if err != nil {
		return map[string]methodReport{}
	}

	out := make(map[string]methodReport)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			method := labelValue(m, "method")
			rep := out[method]
			switch family.GetName() {
			case callsMetric:
				code := labelValue(m, "code")
				n := int64(m.GetCounter().GetValue())
				if rep.Codes == nil {
					rep.Codes = make(map[string]int64)
				}
				rep.Codes[code] += n
				rep.Calls += n
				if code == codes.OK.String() {
					rep.Success += n
				} else {
					rep.Failed += n
				}
				rep.ErrorRate = ratio(rep.Failed, rep.Calls)
			case latencyMetric:
				rep.LatencyMs = summarize(m.GetSummary())
			}
			out[method] = rep
		}
	}
	return out
}

func (r *recorder) method(name string) (methodReport, bool) {
	rep, ok := r.methods()[name]
	return rep, ok
}

func (r *recorder) build(startedAt time.Time, elapsed time.Duration) report {
	methods := r.methods()
	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         methods,
	}
	if scenario, ok := methods[scenarioMethod]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if elapsed > 0 {
		result.RPS = float64(result.TotalScenarios) / elapsed.Seconds()
	}
	return result
}

func summarize(s *dto.Summary) latencySummary {
	var out latencySummary
	if n := s.GetSampleCount(); n > 0 {
		out.Avg = s.GetSampleSum() / float64(n)
	}
	for _, q := range s.GetQuantile() {
		switch q.GetQuantile() {
		case 0.5:
			out.P50 = q.GetValue()
		case 0.95:
			out.P95 = q.GetValue()
		case 0.99:
			out.P99 = q.GetValue()
		}
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

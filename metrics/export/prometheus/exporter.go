package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/srpflow"
	"github.com/MrEthical07/srpflow/metrics/export/internaldefs"
	"github.com/MrEthical07/srpflow/states/authn"
)

// EngineStateMetric is a gauge set to 1 with the current root state as label.
const EngineStateMetric = "srpflow_engine_state"

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is what Render reads. *srpflow.Engine implements it.
type Source interface {
	MetricsSnapshot() srpflow.MetricsSnapshot
	AuditDropped() uint64
	State() authn.State
}

// Exporter renders engine metrics in the Prometheus text format.
type Exporter struct {
	source Source
}

// New returns an exporter reading engine.
func New(engine *srpflow.Engine) *Exporter {
	if engine == nil {
		return &Exporter{}
	}
	return &Exporter{source: engine}
}

// NewFromSource returns an exporter reading source.
func NewFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render on every request.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, p.Render())
	})
}

// Render returns the current metrics, or "" when the engine collects none.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)
	for _, def := range internaldefs.CounterDefs {
		writeHeader(&b, def.Name, def.Help, "counter")
		fmt.Fprintf(&b, "%s %d\n", def.Name, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		writeLatency(&b, def, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID])))
	}

	writeHeader(&b, "srpflow_audit_dropped_total", "Audit events dropped because the dispatcher buffer was full.", "counter")
	fmt.Fprintf(&b, "srpflow_audit_dropped_total %d\n", dropped)

	if st := p.source.State(); st != nil {
		writeHeader(&b, EngineStateMetric, "Current root state of the sign-in engine.", "gauge")
		fmt.Fprintf(&b, "%s{state=%q} 1\n", EngineStateMetric, st.Type())
	}
	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func writeLatency(b *strings.Builder, def internaldefs.HistogramDef, cum [8]uint64) {
	writeHeader(b, def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(b, "%s_bucket{le=%q} %d\n", def.Name, le, cum[i])
	}
	fmt.Fprintf(b, "%s_count %d\n", def.Name, cum[len(cum)-1])
	// Snapshots keep bucket counts only.
	fmt.Fprintf(b, "%s_sum 0\n", def.Name)
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}

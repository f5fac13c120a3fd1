package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/multiauth"
	"github.com/MrEthical07/multiauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders multiauth metrics in the Prometheus text
// exposition format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter reads from engine.
func NewPrometheusExporter(engine *multiauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any internaldefs.Source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves the current metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = p.WriteTo(w)
	})
}

// Render returns the current metrics as a string.
func (p *PrometheusExporter) Render() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes the current metrics to w. Nothing is written while every
// value is still zero and the snapshot is empty.
func (p *PrometheusExporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}

	snapshot := p.source.MetricsSnapshot()
	audit := make([]uint64, len(internaldefs.AuditDefs))
	var auditTotal uint64
	for i, def := range internaldefs.AuditDefs {
		audit[i] = def.Read(p.source)
		auditTotal += audit[i]
	}
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && auditTotal == 0 {
		return 0, nil
	}

	tw := &textWriter{w: bufio.NewWriter(w)}
	for _, def := range internaldefs.CounterDefs {
		tw.counter(def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		tw.histogram(def.Name, def.Help, buckets, snapshot.Sums[def.ID].Seconds())
	}
	for i, def := range internaldefs.AuditDefs {
		tw.counter(def.Name, def.Help, audit[i])
	}
	return tw.flush()
}

// textWriter keeps the first write error and the byte count.
type textWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	n, err := fmt.Fprintf(t.w, format, args...)
	t.n += int64(n)
	t.err = err
}

func (t *textWriter) header(name, help, kind string) {
	t.printf("# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func (t *textWriter) counter(name, help string, value uint64) {
	t.header(name, help, "counter")
	t.printf("%s %d\n", name, value)
}

func (t *textWriter) histogram(name, help string, cumulative [8]uint64, sum float64) {
	t.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		t.printf("%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}
	t.printf("%s_count %d\n", name, cumulative[len(cumulative)-1])
	t.printf("%s_sum %s\n", name, strconv.FormatFloat(sum, 'g', -1, 64))
}

func (t *textWriter) flush() (int64, error) {
	if t.err != nil {
		return t.n, t.err
	}
	return t.n, t.w.Flush()
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}

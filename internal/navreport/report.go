package navreport

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/navfusion/internal/httputil"
	"github.com/banshee-data/navfusion/internal/navlog"
)

// DashboardFile is the name of the HTML page written by WriteReport.
const DashboardFile = "dashboard.html"

// WriteReport writes the PNG plots and the HTML dashboard for samples into
// dir and returns every file written.
func WriteReport(samples []navlog.Sample, dir, subtitle string) ([]string, error) {
	s := BuildSeries(samples)
	files, err := WritePlots(s, dir)
	if err != nil {
		return files, err
	}

	var buf bytes.Buffer
	if err := RenderDashboard(&buf, s, subtitle); err != nil {
		return files, err
	}
	path := filepath.Join(dir, DashboardFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return files, fmt.Errorf("write dashboard: %w", err)
	}
	return append(files, path), nil
}

// SampleSource supplies the samples shown on the live charts page.
type SampleSource interface {
	RecentSamples() ([]navlog.Sample, error)
}

// RunWindow serves the newest Limit samples of one recorded run.
type RunWindow struct {
	DB    *navlog.DB
	RunID string
	Limit int
}

// RecentSamples implements SampleSource.
func (r RunWindow) RecentSamples() ([]navlog.Sample, error) {
	return r.DB.RecentSamples(r.RunID, r.Limit)
}

// AttachRoutes mounts the live charts page at /debug/nav/charts.
func AttachRoutes(mux *http.ServeMux, src SampleSource) {
	debug := tsweb.Debugger(mux)
	debug.Handle("nav/charts", "Navigation estimate vs measurement charts", ChartsHandler(src))
}

// ChartsHandler renders the dashboard from the current samples of src.
func ChartsHandler(src SampleSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		samples, err := src.RecentSamples()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("load samples: %v", err))
			return
		}

		subtitle := fmt.Sprintf("%d samples", len(samples))
		if n := len(samples); n > 0 {
			subtitle = fmt.Sprintf("%d samples, last %s", n, samples[n-1].Time.Format(time.RFC3339))
		}

		var buf bytes.Buffer
		if err := RenderDashboard(&buf, BuildSeries(samples), subtitle); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

// Package admin implements the read-only operational dashboard (spec.md
// §9 "operational visibility"): HTML debug routes exposing the
// orchestrator's live session table, the shared ScanSync monitor's
// liveness map, and the last compiled phase table.
//
// Grounded on the teacher's internal/serialmux.AttachAdminRoutes, which
// wires its own read/write serial-port console onto tsweb.Debugger; the
// routes here are read-only, so only the HandleFunc half of that idiom
// is used. The phase table chart is grounded on the teacher's own
// internal/lidar/monitor/echarts_handlers.go (handleTrafficChart).
package admin

import (
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/scanhead/internal/system"
)

// Dashboard wires a *system.System's read-only state onto a set of
// /debug routes.
type Dashboard struct {
	sys *system.System
}

// New constructs a Dashboard over sys.
func New(sys *system.System) *Dashboard {
	return &Dashboard{sys: sys}
}

// AttachAdminRoutes registers /debug/sessions, /debug/scansync and
// /debug/phasetable on mux, in the teacher's tsweb.Debugger idiom.
func (d *Dashboard) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("sessions", "scan head registry and per-session state", d.handleSessions)
	debug.HandleFunc("scansync", "ScanSync monitor liveness map", d.handleScanSync)
	debug.HandleFunc("phasetable", "last compiled phase table timeline", d.handlePhaseTable)
}

// handleSessions renders the orchestrator's sorted-by-id head registry.
func (d *Dashboard) handleSessions(w http.ResponseWriter, r *http.Request) {
	heads := d.sys.Snapshot()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><head><title>scan heads</title></head><body>")
	fmt.Fprintf(w, "<h1>scan heads</h1><table border=\"1\" cellpadding=\"4\">")
	fmt.Fprintf(w, "<tr><th>id</th><th>serial</th><th>type</th><th>state</th></tr>")
	for _, h := range heads {
		fmt.Fprintf(w, "<tr><td>%d</td><td>%d</td><td>%s</td><td>%s</td></tr>",
			h.ID, h.Serial, html.EscapeString(h.Type.String()), html.EscapeString(h.State.String()))
	}
	fmt.Fprintf(w, "</table></body></html>")
}

// handleScanSync renders the shared ScanSync monitor's current liveness
// map, if one is attached.
func (d *Dashboard) handleScanSync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	mon := d.sys.ScanSyncMonitor()
	if mon == nil {
		fmt.Fprintf(w, "<html><body><p>no ScanSync monitor attached</p></body></html>")
		return
	}

	devices := mon.Discovered()
	fmt.Fprintf(w, "<html><head><title>scansync</title></head><body>")
	fmt.Fprintf(w, "<h1>scansync devices</h1><table border=\"1\" cellpadding=\"4\">")
	fmt.Fprintf(w, "<tr><th>serial</th><th>encoder</th><th>sequence</th><th>firmware</th><th>last seen</th></tr>")
	for _, dev := range devices {
		fmt.Fprintf(w, "<tr><td>%d</td><td>%d</td><td>%d</td><td>%s</td><td>%s</td></tr>",
			dev.Serial, dev.LatestStatus.Encoder, dev.LatestStatus.Sequence,
			html.EscapeString(dev.LatestStatus.Firmware.String()), dev.LastSeen.Format("15:04:05.000"))
	}
	fmt.Fprintf(w, "</table></body></html>")
}

// handlePhaseTable renders the orchestrator's last compiled phase table
// as an echarts bar chart, one bar per phase, matching the teacher's
// handleTrafficChart shape (NewBar, WithInitializationOpts/TitleOpts,
// SetXAxis/AddSeries).
func (d *Dashboard) handlePhaseTable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	compiled, ok := d.sys.CompiledPhaseTable()
	if !ok {
		fmt.Fprintf(w, "<html><body><p>no phase table compiled yet</p></body></html>")
		return
	}

	x := make([]string, len(compiled.Phases))
	y := make([]opts.BarData, len(compiled.Phases))
	for i, p := range compiled.Phases {
		x[i] = "phase " + strconv.Itoa(i)
		y[i] = opts.BarData{Value: p.DurationUS}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "phase table",
			Subtitle: fmt.Sprintf("total=%dus camera_early_offset=%dus", compiled.TotalDurationUS, compiled.CameraEarlyOffsetUS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "duration (us)"}),
	)
	bar.SetXAxis(x).
		AddSeries("duration_us", y, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	if err := bar.Render(w); err != nil {
		http.Error(w, fmt.Sprintf("failed to render phase table chart: %v", err), http.StatusInternalServerError)
	}
}

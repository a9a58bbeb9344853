package httpapi

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/aggregate"
	"github.com/propmanage/propsync/internal/model"
)

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"money": aggregate.FormatCurrency,
}).Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>PropManage API</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --muted: #6f7d7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "IBM Plex Sans", "Segoe UI", sans-serif;
      color: var(--ink);
      background: var(--paper);
    }
    main { max-width: 960px; margin: 0 auto; padding: 32px 20px; }
    h1 { margin: 0 0 4px; font-size: 1.6rem; }
    .muted { color: var(--muted); }
    .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 12px; margin: 24px 0; }
    .card { background: var(--card); border: 1px solid var(--line); border-radius: 12px; padding: 14px 16px; }
    .card b { display: block; font-size: 1.5rem; color: var(--accent); }
    table { width: 100%; border-collapse: collapse; background: var(--card); border: 1px solid var(--line); }
    th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid var(--line); }
    th { font-size: 0.8rem; text-transform: uppercase; color: var(--muted); }
  </style>
</head>
<body>
  <main>
    <h1>PropManage API</h1>
    <p class="muted">Development server. REST endpoints live under <code>/api</code>; change events stream from <code>/api/events</code>.</p>
    <section class="grid">
      <div class="card">Properties<b>{{.TotalProperties}}</b></div>
      <div class="card">Units<b>{{.TotalUnits}}</b></div>
      <div class="card">Occupancy<b>{{.OccupancyRate}}%</b></div>
      <div class="card">Revenue<b>{{money .TotalRevenue}}</b></div>
      <div class="card">Pending payments<b>{{.PendingPayments}}</b></div>
      <div class="card">Open tickets<b>{{.OpenTickets}}</b></div>
      <div class="card">Expiring leases<b>{{.ExpiringLeases}}</b></div>
    </section>
    <table>
      <thead><tr><th>Property</th><th>Occupancy</th></tr></thead>
      <tbody>
      {{range .OccupancyByProperty}}<tr><td>{{.Property}}</td><td>{{.Rate}}%</td></tr>
      {{else}}<tr><td colspan="2" class="muted">No properties yet</td></tr>
      {{end}}
      </tbody>
    </table>
  </main>
</body>
</html>`))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var stats model.DashboardStats
	if s.repo != nil {
		stats = s.repo.DashboardStats()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, stats); err != nil {
		s.logger.Warn("render dashboard page failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

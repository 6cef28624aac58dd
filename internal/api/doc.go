// Package api implements the phenowatch REST API.
//
// Every data endpoint runs the pipeline (served from the table cache unless
// the source changed) and returns a view of the resulting report. A pipeline
// failure caused by the data (missing column, non-numeric count, empty table,
// ...) is reported as 422 with a JSON error body; a source that cannot be read
// is 502.
//
// Routes (all GET; any other method returns 405):
//
//	/api/v1/health         pipeline state, week and alert counts
//	/api/v1/report         full Document (weeks, alerts, thresholds)
//	/api/v1/weeks          derived weeks; ?alerted=true keeps flagged weeks only
//	/api/v1/alerts         alert status table plus a plain-language hint per flag
//	/api/v1/thresholds     per-category threshold and quartiles
//	/api/v1/series         long-format chart points with colours
//	/api/v1/notifications  sent notifications, newest first; ?limit=N
//	/api/v1/chart.png      line chart (PNG)
//	/api/v1/chart.svg      line chart (SVG)
//	/api/v1/export.xlsx    workbook with Weekly, Alerts, Thresholds sheets
//	/api/v1/report.txt     plain-text tables; ?raw=true adds the full table
package api

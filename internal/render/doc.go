// Package render turns an evaluated report into output formats.
//
// Each renderer implements pipeline.Renderer (Render + ContentType):
//
//   - Chart: weekly percentage per phenotype as a line chart with markers,
//     PNG or SVG via go-chart. Y axis fixed at 0-100.
//   - Text: aligned plain-text tables (raw data, thresholds, alert status)
//     with locale-aware number formatting.
//   - XLSX: a workbook with "Weekly", "Alerts" and "Thresholds" sheets.
//     The Weekly sheet is itself valid loader input.
//   - JSON: the Document shape also served by the HTTP API.
package render

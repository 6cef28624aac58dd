// Package loader reads the weekly phenotype table from CSV, XLSX or legacy XLS
// data, either from a local file or over HTTP.
//
// Every format is reduced to rows of strings and handed to one parser, so
// header handling and validation are identical across formats:
//
//   - the first non-blank row is the header; it must contain the columns
//     week, MRSA, VRSA, Other and Wild (case-sensitive, any order, extra
//     columns ignored)
//   - fully blank rows are skipped
//   - counts are non-negative-looking integers; "12.0" is accepted, "12.5" is not.
//     Sign checks are left to the compute package
//   - week cells are parsed with the configured layout, then RFC3339, then as
//     an Excel date serial
//
// A Source also reports a version token (file mtime+size, or HTTP ETag /
// Last-Modified) so callers can cache the parsed table until the underlying
// data changes.
package loader

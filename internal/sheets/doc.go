// Package sheets provides the raw table sources behind every business line.
//
// Feishu (feishu.go) reads a worksheet range through the Feishu Sheets v2 API
// with a cached tenant access token; the bearer header is added by the shared
// tokenRoundTripper in source.go. Workbook (workbook.go) reads a local .xlsx
// file with excelize, for offline dashboards and fixtures.
// New(cfg) returns the Source selected by source.type.
package sheets

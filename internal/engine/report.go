package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"scansweep/internal/domain"
)

// ReportTypes are all report formats the server can generate.
var ReportTypes = []string{
	"html",
	"dynamic_top_matched_components",
	"xlsx",
	"spdx",
	"spdx_lite",
	"cyclone_dx",
	"string_match",
}

var reportExtensions = map[string]string{
	"html":                           "html",
	"dynamic_top_matched_components": "html",
	"xlsx":                           "xlsx",
	"spdx":                           "rdf",
	"spdx_lite":                      "xlsx",
	"cyclone_dx":                     "json",
	"string_match":                   "xlsx",
}

// WaitForScan blocks until the scan itself reaches a terminal state.
func (e Engine) WaitForScan(ctx context.Context, scanCode string) error {
	log.Printf("checking scan %s status...", scanCode)
	st, err := e.Poll.Wait(ctx, func(ctx context.Context) (domain.JobStatus, error) {
		return e.API.CheckStatus(ctx, scanCode, "", "")
	})
	if err != nil {
		return fmt.Errorf("waiting for scan %s: %w", scanCode, err)
	}
	if st.Failed() {
		return fmt.Errorf("scan %s ended in state %s: %s", scanCode, st.Status, st.Message)
	}
	log.Printf("scan %s completed", scanCode)
	return nil
}

// DownloadReports waits for the scan to finish and then generates and
// downloads each requested report type. reportType "ALL" expands to every
// known type. It returns the written file paths.
func (e Engine) DownloadReports(ctx context.Context, scanCode, reportType, outDir string) ([]string, error) {
	if err := e.WaitForScan(ctx, scanCode); err != nil {
		return nil, err
	}
	types := []string{reportType}
	if reportType == "ALL" {
		types = ReportTypes
	}
	var paths []string
	for _, rt := range types {
		path, err := e.downloadReport(ctx, scanCode, rt, outDir)
		if err != nil {
			return paths, fmt.Errorf("%s report: %w", rt, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (e Engine) downloadReport(ctx context.Context, scanCode, reportType, outDir string) (string, error) {
	log.Printf("generating %s report...", reportType)
	job, err := e.API.GenerateReport(ctx, scanCode, reportType)
	if err != nil {
		return "", err
	}
	log.Printf("report generation started, process id %s", job.QueueID)

	st, err := e.Poll.Wait(ctx, func(ctx context.Context) (domain.JobStatus, error) {
		return e.API.CheckStatus(ctx, scanCode, job.Generated.ID.String(), "")
	})
	if err != nil {
		return "", err
	}
	if st.Failed() {
		return "", fmt.Errorf("generation ended in state %s: %s", st.Status, st.Message)
	}

	log.Printf("downloading %s report...", reportType)
	body, err := e.API.DownloadReport(ctx, job.QueueID.String())
	if err != nil {
		return "", err
	}
	if reportType == "dynamic_top_matched_components" {
		body = unwrapDynamicReport(body)
	}

	ext := reportExtensions[reportType]
	if ext == "" {
		ext = "zip"
	}
	name := fmt.Sprintf("%s_%s_report.%s", scanCode, reportType, ext)
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
		name = filepath.Join(outDir, name)
	}
	if err := os.WriteFile(name, body, 0o644); err != nil {
		return "", err
	}
	log.Printf("report saved as %s", name)
	return name, nil
}

// unwrapDynamicReport extracts the HTML payload the server nests inside a
// JSON envelope for this one report type. Anything unexpected is written
// through as-is.
func unwrapDynamicReport(body []byte) []byte {
	var resp struct {
		Data struct {
			Report string `json:"report"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data.Report == "" {
		return body
	}
	return []byte(resp.Data.Report)
}

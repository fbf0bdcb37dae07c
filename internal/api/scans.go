package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"scansweep/internal/domain"
)

// ServerInfo identifies the Workbench instance. Fetching it doubles as the
// credential check every command runs before doing real work.
type ServerInfo struct {
	ServerName string `json:"server_name"`
	Version    string `json:"version"`
}

// ServerConfig validates the connection and returns server identity.
func (c *Client) ServerConfig(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.call(ctx, "internal", "getConfig", nil, &info)
	return info, err
}

// ListScans returns one page of the scan listing. The server keys the page by
// scan id; entries come back sorted by code so pagination is deterministic.
func (c *Client) ListScans(ctx context.Context, page, perPage int) ([]domain.Scan, error) {
	data := map[string]any{
		"records_per_page": perPage,
		"page":             page,
	}
	raw, err := c.callRaw(ctx, "scans", "list_scans", data)
	if err != nil {
		return nil, err
	}
	return decodeScanPage(raw)
}

func decodeScanPage(raw json.RawMessage) ([]domain.Scan, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	// An empty page arrives as [] while a populated one is an object keyed
	// by scan id.
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "[]" || trimmed == "null" {
		return nil, nil
	}
	var byID map[string]domain.Scan
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, fmt.Errorf("decode scan listing: %w", err)
	}
	scans := make([]domain.Scan, 0, len(byID))
	for id, s := range byID {
		if s.ID == "" {
			s.ID = id
		}
		scans = append(scans, s)
	}
	sort.Slice(scans, func(i, j int) bool { return scans[i].Code < scans[j].Code })
	return scans, nil
}

// ScanInfo fetches the full record for one scan.
func (c *Client) ScanInfo(ctx context.Context, scanCode string) (domain.ScanInfo, error) {
	var info domain.ScanInfo
	err := c.call(ctx, "scans", "get_information", map[string]any{"scan_code": scanCode}, &info)
	if err == nil && info.Code == "" {
		info.Code = scanCode
	}
	return info, err
}

// ProjectName resolves a project code to its display name.
func (c *Client) ProjectName(ctx context.Context, projectCode string) (string, error) {
	var info struct {
		ProjectName string `json:"project_name"`
	}
	err := c.call(ctx, "projects", "get_information", map[string]any{"project_code": projectCode}, &info)
	return info.ProjectName, err
}

// ArchiveScan archives a scan. Archiving is reversible on the server side.
func (c *Client) ArchiveScan(ctx context.Context, scanCode string) error {
	return c.call(ctx, "scans", "archive_scan", map[string]any{"scan_code": scanCode}, nil)
}

// DeleteScan removes a scan permanently.
func (c *Client) DeleteScan(ctx context.Context, scanCode string) error {
	return c.call(ctx, "scans", "delete_scan", map[string]any{"scan_code": scanCode}, nil)
}

// CheckStatus queries the state of the scan itself (empty processID and
// statusType), of one report generation (processID set), or of a dependency
// analysis run (statusType "DEPENDENCY_ANALYSIS").
func (c *Client) CheckStatus(ctx context.Context, scanCode, processID, statusType string) (domain.JobStatus, error) {
	data := map[string]any{
		"scan_code":      scanCode,
		"delay_response": "1",
	}
	if processID != "" {
		data["process_id"] = processID
	}
	if statusType != "" {
		data["type"] = statusType
	}
	var st domain.JobStatus
	err := c.call(ctx, "scans", "check_status", data, &st)
	return st, err
}

// ReportJob identifies a queued report generation: the generation process id
// is what gets polled, the queue id is what gets downloaded.
type ReportJob struct {
	QueueID   StringID `json:"process_queue_id"`
	Generated struct {
		ID StringID `json:"id"`
	} `json:"generation_process"`
}

// GenerateReport queues asynchronous generation of one report type.
func (c *Client) GenerateReport(ctx context.Context, scanCode, reportType string) (ReportJob, error) {
	data := map[string]any{
		"scan_code":      scanCode,
		"report_type":    reportType,
		"selection_type": "include_all_licenses",
		"selection_view": "all",
		"async":          "1",
	}
	var job ReportJob
	err := c.call(ctx, "scans", "generate_report", data, &job)
	return job, err
}

// DownloadReport fetches a generated report as raw bytes.
func (c *Client) DownloadReport(ctx context.Context, processQueueID string) ([]byte, error) {
	data := map[string]any{
		"report_entity": "scans",
		"process_id":    processQueueID,
	}
	return c.download(ctx, "download", "download_report", data)
}

// ProjectPolicy fetches a project's license policy document as raw bytes.
func (c *Client) ProjectPolicy(ctx context.Context, projectCode string) ([]byte, error) {
	data := map[string]any{"project_code": projectCode}
	return c.download(ctx, "download", "licenses_policy_info", data)
}

// RunDependencyAnalysis triggers dependency analysis for a scan. With
// importOnly the server only ingests previously uploaded analyzer results.
func (c *Client) RunDependencyAnalysis(ctx context.Context, scanCode string, importOnly bool) error {
	data := map[string]any{"scan_code": scanCode}
	if importOnly {
		data["import_only"] = "1"
	}
	return c.call(ctx, "scans", "run_dependency_analysis", data, nil)
}

// PendingFiles lists files awaiting identification, keyed by file id.
func (c *Client) PendingFiles(ctx context.Context, scanCode string) (map[string]string, error) {
	raw, err := c.callRaw(ctx, "scans", "get_pending_files", map[string]any{"scan_code": scanCode})
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "[]" || trimmed == "null" {
		return nil, nil
	}
	var files map[string]string
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("decode pending files: %w", err)
	}
	return files, nil
}

// PolicyWarning is one license or category rule violation.
type PolicyWarning struct {
	LicenseID       string   `json:"license_id"`
	LicenseCategory string   `json:"license_category"`
	Findings        StringID `json:"findings"`
	LicenseInfo     struct {
		Identifier string `json:"rule_lic_identifier"`
	} `json:"license_info"`
}

// PolicyWarnings returns rule violations recorded against a scan.
func (c *Client) PolicyWarnings(ctx context.Context, scanCode string) ([]PolicyWarning, error) {
	var out struct {
		Warnings []PolicyWarning `json:"policy_warnings_list"`
	}
	err := c.call(ctx, "scans", "get_policy_warnings_info", map[string]any{"scan_code": scanCode}, &out)
	return out.Warnings, err
}

// QuickScanFile matches a single base64-encoded file against the knowledge
// base. Each result arrives as a JSON string that callers decode separately.
func (c *Client) QuickScanFile(ctx context.Context, contentB64 string) ([]string, error) {
	data := map[string]any{
		"file_content": contentB64,
		"limit":        "1",
		"sensitivity":  "10",
	}
	var results []string
	err := c.call(ctx, "quick_scan", "scan_one_file", data, &results)
	return results, err
}

// UploadDependencyResults streams an analyzer result file to the server. The
// scan code and file name travel base64-encoded in vendor headers.
func (c *Client) UploadDependencyResults(ctx context.Context, scanCode, fileName string, r io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, r)
	if err != nil {
		return err
	}
	req.Header.Set("FOSSID-SCAN-CODE", b64(scanCode))
	req.Header.Set("FOSSID-FILE-NAME", b64(fileName))
	req.Header.Set("FOSSID-UPLOAD-TYPE", "dependency_analysis")
	req.Header.Set("Accept", "*/*")
	req.SetBasicAuth(c.User, c.Token)
	_, err = c.send(req)
	return err
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// StringID tolerates numeric and string ids in the same field.
type StringID string

func (s *StringID) UnmarshalJSON(b []byte) error {
	*s = StringID(strings.Trim(string(b), `"`))
	if *s == "null" {
		*s = ""
	}
	return nil
}

func (s StringID) String() string { return string(s) }

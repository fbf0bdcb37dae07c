package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://workbench.example.com", "https://workbench.example.com/api.php"},
		{"https://workbench.example.com/", "https://workbench.example.com/api.php"},
		{"https://workbench.example.com/api.php", "https://workbench.example.com/api.php"},
	}
	for _, tc := range cases {
		if got := NormalizeURL(tc.in); got != tc.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUIBase(t *testing.T) {
	c := New("https://workbench.example.com/", "u", "t")
	if got := c.UIBase(); got != "https://workbench.example.com" {
		t.Errorf("UIBase() = %q", got)
	}
}

// request captures what the client actually sent.
type request struct {
	Group  string         `json:"group"`
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "tester", "secret-token")
}

func TestCallInjectsCredentials(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api.php" {
			t.Errorf("request path = %q, want /api.php", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"status":"1","data":{}}`)
	})

	if err := c.call(context.Background(), "scans", "archive_scan", map[string]any{"scan_code": "s1"}, nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got.Group != "scans" || got.Action != "archive_scan" {
		t.Errorf("sent %s/%s", got.Group, got.Action)
	}
	if got.Data["username"] != "tester" || got.Data["key"] != "secret-token" {
		t.Errorf("credentials not injected: %v", got.Data)
	}
	if got.Data["scan_code"] != "s1" {
		t.Errorf("caller data lost: %v", got.Data)
	}
}

func TestCallEnvelopeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","error":"Classes.TableRepository.row_not_found"}`)
	})

	err := c.call(context.Background(), "scans", "get_information", map[string]any{"scan_code": "gone"}, nil)
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestCallLogicError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","error":"scan is currently running"}`)
	})

	err := c.call(context.Background(), "scans", "delete_scan", map[string]any{"scan_code": "busy"}, nil)
	var le *LogicError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LogicError", err)
	}
	if le.Message != "scan is currently running" {
		t.Errorf("message = %q", le.Message)
	}
	if IsTransient(err) || IsNotFound(err) {
		t.Error("logic errors are neither transient nor not-found")
	}
}

func TestSendClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var ae *AuthError
				if !errors.As(err, &ae) {
					t.Fatalf("err = %v, want AuthError", err)
				}
				if IsTransient(err) {
					t.Error("auth errors must never be retryable")
				}
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var ae *AuthError
				if !errors.As(err, &ae) {
					t.Fatalf("err = %v, want AuthError", err)
				}
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				if !IsNotFound(err) {
					t.Fatalf("err = %v, want NotFoundError", err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				if !IsTransient(err) {
					t.Fatalf("err = %v, want TransientError", err)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			err := c.call(context.Background(), "scans", "list_scans", nil, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			tc.check(t, err)
		})
	}
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "u", "t")
	err := c.call(context.Background(), "scans", "list_scans", nil, nil)
	if !IsTransient(err) {
		t.Fatalf("err = %v, want TransientError", err)
	}
}

func TestDecodeScanPage(t *testing.T) {
	t.Run("object keyed by id", func(t *testing.T) {
		raw := json.RawMessage(`{
			"12": {"code": "scan_b", "name": "Scan B"},
			"7":  {"id": "7", "code": "scan_a", "name": "Scan A"}
		}`)
		scans, err := decodeScanPage(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(scans) != 2 {
			t.Fatalf("got %d scans, want 2", len(scans))
		}
		if scans[0].Code != "scan_a" || scans[1].Code != "scan_b" {
			t.Errorf("not sorted by code: %v", scans)
		}
		if scans[1].ID != "12" {
			t.Errorf("map key not used as fallback id: %q", scans[1].ID)
		}
	})

	t.Run("empty page is an array", func(t *testing.T) {
		for _, raw := range []string{`[]`, `null`, ``} {
			scans, err := decodeScanPage(json.RawMessage(raw))
			if err != nil {
				t.Fatalf("decode %q: %v", raw, err)
			}
			if len(scans) != 0 {
				t.Errorf("decode %q: got %d scans, want 0", raw, len(scans))
			}
		}
	})
}

func TestListScansRequest(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"status":"1","data":{"3":{"code":"scan_c","name":"C"}}}`)
	})

	scans, err := c.ListScans(context.Background(), 2, 500)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if got.Data["page"] != float64(2) || got.Data["records_per_page"] != float64(500) {
		t.Errorf("pagination params: %v", got.Data)
	}
	if len(scans) != 1 || scans[0].Code != "scan_c" {
		t.Errorf("scans = %v", scans)
	}
}

func TestCheckStatusOptionalParams(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"status":"1","data":{"status":"RUNNING","is_finished":"0"}}`)
	})

	st, err := c.CheckStatus(context.Background(), "s1", "", "")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st.Status != "RUNNING" || st.Finished() {
		t.Errorf("status = %+v", st)
	}
	if got.Data["delay_response"] != "1" {
		t.Errorf("delay_response missing: %v", got.Data)
	}
	if _, present := got.Data["process_id"]; present {
		t.Error("empty process_id must be omitted")
	}
	if _, present := got.Data["type"]; present {
		t.Error("empty type must be omitted")
	}

	if _, err := c.CheckStatus(context.Background(), "s1", "42", "DEPENDENCY_ANALYSIS"); err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if got.Data["process_id"] != "42" || got.Data["type"] != "DEPENDENCY_ANALYSIS" {
		t.Errorf("optional params: %v", got.Data)
	}
}

func TestGenerateReportDecodesIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// The server mixes numeric and string ids in the same response.
		fmt.Fprint(w, `{"status":"1","data":{"process_queue_id":991,"generation_process":{"id":"412"}}}`)
	})

	job, err := c.GenerateReport(context.Background(), "s1", "xlsx")
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if job.QueueID.String() != "991" {
		t.Errorf("QueueID = %q, want 991", job.QueueID)
	}
	if job.Generated.ID.String() != "412" {
		t.Errorf("generation process id = %q, want 412", job.Generated.ID)
	}
}

func TestDownloadReportReturnsRawBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "%PDF-not-json")
	})

	body, err := c.DownloadReport(context.Background(), "991")
	if err != nil {
		t.Fatalf("DownloadReport: %v", err)
	}
	if string(body) != "%PDF-not-json" {
		t.Errorf("body = %q", body)
	}
}

func TestPendingFilesToleratesEmptyArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"1","data":[]}`)
	})

	files, err := c.PendingFiles(context.Background(), "s1")
	if err != nil {
		t.Fatalf("PendingFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
}

func TestUploadDependencyResultsHeaders(t *testing.T) {
	var gotHeaders http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	err := c.UploadDependencyResults(context.Background(), "my_scan", "analyzer-result.json", nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotHeaders.Get("FOSSID-SCAN-CODE") != b64("my_scan") {
		t.Errorf("scan code header = %q", gotHeaders.Get("FOSSID-SCAN-CODE"))
	}
	if gotHeaders.Get("FOSSID-FILE-NAME") != b64("analyzer-result.json") {
		t.Errorf("file name header = %q", gotHeaders.Get("FOSSID-FILE-NAME"))
	}
	if gotHeaders.Get("FOSSID-UPLOAD-TYPE") != "dependency_analysis" {
		t.Errorf("upload type header = %q", gotHeaders.Get("FOSSID-UPLOAD-TYPE"))
	}
}

func TestStringID(t *testing.T) {
	var out struct {
		A StringID `json:"a"`
		B StringID `json:"b"`
		C StringID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 42, "b": "42", "c": null}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.A != "42" || out.B != "42" || out.C != "" {
		t.Errorf("ids = %q %q %q", out.A, out.B, out.C)
	}
}

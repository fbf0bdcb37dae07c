package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"scansweep/internal/api"
)

// QuickScanMatch is one knowledge-base match for a quick-scanned file.
type QuickScanMatch struct {
	Type      string `json:"type"`
	Component struct {
		Artifact string `json:"artifact"`
		Author   string `json:"author"`
	} `json:"component"`
	Snippet struct {
		RemoteSize api.StringID `json:"remote_size"`
	} `json:"snippet"`
	Raw json.RawMessage `json:"-"`
}

// QuickScan matches one local file against the knowledge base.
func (e Engine) QuickScan(ctx context.Context, filePath string) ([]QuickScanMatch, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	results, err := e.API.QuickScanFile(ctx, base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return nil, err
	}
	var matches []QuickScanMatch
	for _, result := range results {
		var m QuickScanMatch
		if err := json.Unmarshal([]byte(result), &m); err != nil {
			return matches, fmt.Errorf("decode quick scan result: %w", err)
		}
		m.Raw = json.RawMessage(result)
		matches = append(matches, m)
	}
	return matches, nil
}

// QuickViewLink is where a match can be inspected interactively.
func (e Engine) QuickViewLink() string {
	return e.API.UIBase() + "/?form=main_interface&action=quickview"
}

// FormatMatch renders a match the way the original tool narrated it.
func FormatMatch(m QuickScanMatch, quickViewLink string) string {
	if m.Component.Artifact == "" {
		return "No matches found."
	}
	switch m.Type {
	case "file":
		return fmt.Sprintf(
			"This entire file seems to originate from the %s repository by %s. "+
				"Drop this file into the Quick View in Workbench for more information: %s",
			m.Component.Artifact, m.Component.Author, quickViewLink)
	case "partial":
		return fmt.Sprintf(
			"This file has %s lines that look like they're from %s by %s. "+
				"Drop this file into the Quick View in Workbench for more information: %s",
			m.Snippet.RemoteSize, m.Component.Artifact, m.Component.Author, quickViewLink)
	}
	return "Unknown match type."
}

package scan

import (
	"sort"
	"strings"

	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/gmp"
	"github.com/anstrom/gvmbridge/internal/registry"
)

// ScanResult is the caller-facing view of a finished (or failed) scan.
type ScanResult struct {
	ScanID        string          `json:"scan_id"`
	Name          string          `json:"scan_name"`
	Targets       []string        `json:"targets"`
	Status        registry.Status `json:"status"`
	ResultDetails []ResultDetail  `json:"result_details"`
	ResultSummary []ResultSummary `json:"result_summary"`
}

// ResultDetail carries the identifying fields of one finding.
type ResultDetail struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Host             string `json:"host"`
	Score            string `json:"score"`
	Description      string `json:"description"`
	CreationTime     string `json:"creation_time"`
	ModificationTime string `json:"modification_time"`
}

// ResultSummary is the vulnerability summary row for one finding. Field
// names follow the CVSS v3 base vector components.
type ResultSummary struct {
	Endpoint string `json:"Endpoint"`
	CVE      string `json:"CVE"`
	Score    string `json:"Score"`
	AV       string `json:"AV"`
	AC       string `json:"AC"`
	PR       string `json:"PR"`
	UI       string `json:"UI"`
	S        string `json:"S"`
	C        string `json:"C"`
	I        string `json:"I"`
	A        string `json:"A"`
}

const cvssVectorFields = 8

// Translate converts a raw engine report into the caller-facing result
// shape. Translation is pure and deterministic: the same report always
// yields the same output, results ordered by finding identifier.
func Translate(record *registry.ScanRecord, report *gmp.Report) (*ScanResult, error) {
	if report == nil || report.ID == "" {
		return nil, errors.NewScanErrorWithID(errors.CodeParse, "Engine returned an empty report", record.ScanID)
	}

	results := append([]gmp.ReportResult(nil), report.Body.Results.Results...)
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})

	details := make([]ResultDetail, 0, len(results))
	summaries := make([]ResultSummary, 0, len(results))
	for _, result := range results {
		details = append(details, ResultDetail{
			ID:               result.ID,
			Name:             result.Name,
			Host:             result.Host.Address(),
			Score:            result.Severity,
			Description:      result.Description,
			CreationTime:     result.CreationTime,
			ModificationTime: result.ModificationTime,
		})

		vector := parseCVSSVector(result.NVT.Severities.Severity.Value)
		summaries = append(summaries, ResultSummary{
			Endpoint: endpoint(result),
			CVE:      result.NVT.CVE(),
			Score:    result.Severity,
			AV:       vector[0],
			AC:       vector[1],
			PR:       vector[2],
			UI:       vector[3],
			S:        vector[4],
			C:        vector[5],
			I:        vector[6],
			A:        vector[7],
		})
	}

	return &ScanResult{
		ScanID:        record.ScanID,
		Name:          record.Name,
		Targets:       append([]string(nil), record.Targets...),
		Status:        record.Status,
		ResultDetails: details,
		ResultSummary: summaries,
	}, nil
}

// emptyResult builds the result shape for scans without findings, such as
// failed scans or reports the engine has not produced results for.
func emptyResult(record *registry.ScanRecord) *ScanResult {
	return &ScanResult{
		ScanID:        record.ScanID,
		Name:          record.Name,
		Targets:       append([]string(nil), record.Targets...),
		Status:        record.Status,
		ResultDetails: []ResultDetail{},
		ResultSummary: []ResultSummary{},
	}
}

// endpoint renders the finding location as host:port, dropping the port
// when the engine reports a general (portless) finding.
func endpoint(result gmp.ReportResult) string {
	host := result.Host.Address()
	port := strings.TrimSpace(result.Port)
	if port == "" || strings.HasPrefix(port, "general") {
		return host
	}
	return host + ":" + port
}

// parseCVSSVector extracts the component values from a CVSS base vector
// such as "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H". The leading
// version token is skipped and each remaining component reduced to the
// value after the colon. Missing components are filled with "N/A" so the
// summary always has the full field set.
func parseCVSSVector(vector string) [cvssVectorFields]string {
	var out [cvssVectorFields]string
	for i := range out {
		out[i] = "N/A"
	}

	parts := strings.Split(vector, "/")
	if len(parts) < 2 {
		return out
	}
	for i, part := range parts[1:] {
		if i >= cvssVectorFields {
			break
		}
		if idx := strings.Index(part, ":"); idx >= 0 {
			out[i] = part[idx+1:]
		} else if part != "" {
			out[i] = part
		}
	}
	return out
}

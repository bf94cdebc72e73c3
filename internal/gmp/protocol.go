// Package gmp implements a client for the Greenbone Management Protocol,
// the stateful XML protocol used to control a GVM/OpenVAS-compatible
// scanning engine. It covers session establishment and the object
// lifecycle gvmbridge needs: targets, tasks, task status and reports.
package gmp

import (
	"encoding/xml"
	"strings"
)

// TaskStatus is the engine's native task status string.
type TaskStatus string

// Task status values reported by GMP.
const (
	TaskNew           TaskStatus = "New"
	TaskRequested     TaskStatus = "Requested"
	TaskQueued        TaskStatus = "Queued"
	TaskRunning       TaskStatus = "Running"
	TaskStopRequested TaskStatus = "Stop Requested"
	TaskStopped       TaskStatus = "Stopped"
	TaskInterrupted   TaskStatus = "Interrupted"
	TaskDone          TaskStatus = "Done"
)

// Command payloads. Each maps one-to-one onto a GMP XML command.

type authenticateCommand struct {
	XMLName     xml.Name    `xml:"authenticate"`
	Credentials credentials `xml:"credentials"`
}

type credentials struct {
	Username string `xml:"username"`
	Password string `xml:"password"`
}

type createTargetCommand struct {
	XMLName  xml.Name `xml:"create_target"`
	Name     string   `xml:"name"`
	Hosts    string   `xml:"hosts"`
	PortList idRef    `xml:"port_list"`
}

type getTargetsCommand struct {
	XMLName xml.Name `xml:"get_targets"`
}

type deleteTargetCommand struct {
	XMLName  xml.Name `xml:"delete_target"`
	TargetID string   `xml:"target_id,attr"`
}

type createTaskCommand struct {
	XMLName xml.Name `xml:"create_task"`
	Name    string   `xml:"name"`
	Config  idRef    `xml:"config"`
	Target  idRef    `xml:"target"`
	Scanner idRef    `xml:"scanner"`
}

type startTaskCommand struct {
	XMLName xml.Name `xml:"start_task"`
	TaskID  string   `xml:"task_id,attr"`
}

type getTasksCommand struct {
	XMLName xml.Name `xml:"get_tasks"`
	TaskID  string   `xml:"task_id,attr,omitempty"`
}

type getReportsCommand struct {
	XMLName  xml.Name `xml:"get_reports"`
	ReportID string   `xml:"report_id,attr"`
	Details  string   `xml:"details,attr"`
	Filter   string   `xml:"filter,attr,omitempty"`
}

type getConfigsCommand struct {
	XMLName xml.Name `xml:"get_configs"`
}

type getScannersCommand struct {
	XMLName xml.Name `xml:"get_scanners"`
}

// idRef is an element whose only payload is an id attribute.
type idRef struct {
	ID string `xml:"id,attr"`
}

// respHeader carries the status attributes present on every GMP response.
type respHeader struct {
	Status     string `xml:"status,attr"`
	StatusText string `xml:"status_text,attr"`
}

func (h *respHeader) statusInfo() (code, text string) {
	return h.Status, h.StatusText
}

// ok reports whether the engine accepted the command (2xx status).
func (h *respHeader) ok() bool {
	return strings.HasPrefix(h.Status, "2")
}

type gmpResponse interface {
	statusInfo() (code, text string)
	ok() bool
}

type authenticateResponse struct {
	XMLName xml.Name `xml:"authenticate_response"`
	respHeader
}

type createTargetResponse struct {
	XMLName xml.Name `xml:"create_target_response"`
	respHeader
	ID string `xml:"id,attr"`
}

type getTargetsResponse struct {
	XMLName xml.Name `xml:"get_targets_response"`
	respHeader
	Targets []targetElement `xml:"target"`
}

type targetElement struct {
	ID    string `xml:"id,attr"`
	Name  string `xml:"name"`
	Hosts string `xml:"hosts"`
}

type deleteTargetResponse struct {
	XMLName xml.Name `xml:"delete_target_response"`
	respHeader
}

type createTaskResponse struct {
	XMLName xml.Name `xml:"create_task_response"`
	respHeader
	ID string `xml:"id,attr"`
}

type startTaskResponse struct {
	XMLName xml.Name `xml:"start_task_response"`
	respHeader
	ReportID string `xml:"report_id"`
}

type getTasksResponse struct {
	XMLName xml.Name `xml:"get_tasks_response"`
	respHeader
	Tasks []taskElement `xml:"task"`
}

type taskElement struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name"`
	Status   string `xml:"status"`
	Progress string `xml:"progress"`
}

type getConfigsResponse struct {
	XMLName xml.Name `xml:"get_configs_response"`
	respHeader
	Configs []namedElement `xml:"config"`
}

type getScannersResponse struct {
	XMLName xml.Name `xml:"get_scanners_response"`
	respHeader
	Scanners []namedElement `xml:"scanner"`
}

type namedElement struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name"`
}

// Report structures. GMP wraps the findings in a report element that
// itself contains an inner report element holding the results.

type getReportsResponse struct {
	XMLName xml.Name `xml:"get_reports_response"`
	respHeader
	Report Report `xml:"report"`
}

// Report is the raw engine report for one scan.
type Report struct {
	ID   string     `xml:"id,attr"`
	Task ReportTask `xml:"task"`
	Body ReportBody `xml:"report"`
}

// ReportTask names the task the report belongs to.
type ReportTask struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name"`
}

// ReportBody is the inner report element with the result list.
type ReportBody struct {
	Results ReportResults `xml:"results"`
}

// ReportResults holds the individual findings.
type ReportResults struct {
	Results []ReportResult `xml:"result"`
}

// ReportResult is one finding.
type ReportResult struct {
	ID               string     `xml:"id,attr"`
	Name             string     `xml:"name"`
	Host             ReportHost `xml:"host"`
	Port             string     `xml:"port"`
	Severity         string     `xml:"severity"`
	Description      string     `xml:"description"`
	CreationTime     string     `xml:"creation_time"`
	ModificationTime string     `xml:"modification_time"`
	NVT              ReportNVT  `xml:"nvt"`
}

// ReportHost carries the finding's host address as character data with
// optional asset child elements.
type ReportHost struct {
	Text string `xml:",chardata"`
}

// Address returns the host address with surrounding whitespace stripped.
func (h ReportHost) Address() string {
	return strings.TrimSpace(h.Text)
}

// ReportNVT describes the vulnerability test behind a finding.
type ReportNVT struct {
	OID        string           `xml:"oid,attr"`
	Name       string           `xml:"name"`
	CVSSBase   string           `xml:"cvss_base"`
	Severities ReportSeverities `xml:"severities"`
	Refs       ReportRefs       `xml:"refs"`
}

// ReportSeverities wraps the NVT severity entry.
type ReportSeverities struct {
	Severity ReportSeverity `xml:"severity"`
}

// ReportSeverity holds a CVSS vector and score.
type ReportSeverity struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value"`
	Score string `xml:"score"`
}

// ReportRefs wraps the NVT reference list.
type ReportRefs struct {
	Refs []ReportRef `xml:"ref"`
}

// ReportRef is a single external reference such as a CVE id.
type ReportRef struct {
	Type string `xml:"type,attr"`
	ID   string `xml:"id,attr"`
}

// CVE returns the first CVE reference, or "N/A" when the NVT has none.
func (n ReportNVT) CVE() string {
	for _, ref := range n.Refs.Refs {
		if ref.Type == "cve" {
			return ref.ID
		}
	}
	return "N/A"
}

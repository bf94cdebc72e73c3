// Package handlers provides HTTP request handlers for the gvmbridge API.
// This file implements the scan endpoints: launching scans, reading their
// status and fetching translated results.
package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/gvmbridge/internal/errors"
	"github.com/anstrom/gvmbridge/internal/logging"
	"github.com/anstrom/gvmbridge/internal/registry"
	"github.com/anstrom/gvmbridge/internal/scan"
)

// ScanHandler handles scan-related API endpoints.
type ScanHandler struct {
	orchestrator *scan.Orchestrator
	logger       *logging.Logger
	validate     *validator.Validate
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(orchestrator *scan.Orchestrator) *ScanHandler {
	return &ScanHandler{
		orchestrator: orchestrator,
		logger:       logging.Default().WithComponent("api").WithFields("handler", "scan"),
		validate:     validator.New(),
	}
}

// TriggerScanRequest represents a scan launch request.
type TriggerScanRequest struct {
	ScanName string `json:"scan_name" validate:"required,min=1,max=255"`
	Targets  string `json:"targets" validate:"required,min=1"`
}

// ScanStatusResponse is the status view of one scan record.
type ScanStatusResponse struct {
	ScanID     string    `json:"scan_id"`
	Name       string    `json:"scan_name"`
	Targets    []string  `json:"targets"`
	Status     string    `json:"status"`
	LastPolled time.Time `json:"last_polled"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScanListResponse is the list view of all scan records.
type ScanListResponse struct {
	Scans []ScanStatusResponse `json:"scans"`
	Total int                  `json:"total"`
}

// TriggerScan handles POST /api/v1/scans - launch a new scan.
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	var req TriggerScanRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, r, errors.WrapScanError(errors.CodeValidation, "Invalid request body", err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, errors.WrapScanError(errors.CodeValidation, "Invalid scan request", err))
		return
	}

	resp, err := h.orchestrator.TriggerScan(r.Context(), req.ScanName, req.Targets)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Info("Scan launched via API",
		"scan_id", resp.ScanID,
		"name", resp.Name,
		"targets", len(resp.Targets))
	writeJSON(w, http.StatusCreated, resp)
}

// GetScan handles GET /api/v1/scans/{id} - current status of one scan.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	scanID, err := extractScanIDFromPath(r)
	if err != nil {
		writeError(w, r, errors.NewScanError(errors.CodeValidation, err.Error()))
		return
	}

	record, err := h.orchestrator.Registry().Get(scanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordToStatusResponse(record))
}

// ListScans handles GET /api/v1/scans - list all scan records.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	records := h.orchestrator.Registry().List()
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ScanID < records[j].ScanID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	scans := make([]ScanStatusResponse, 0, len(records))
	for _, record := range records {
		scans = append(scans, recordToStatusResponse(record))
	}
	writeJSON(w, http.StatusOK, ScanListResponse{Scans: scans, Total: len(scans)})
}

// GetResults handles GET /api/v1/scans/{id}/results - translated findings.
// A scan that is still pending or running answers 200 with its current
// status and empty result lists; only unknown identifiers and backend
// faults produce errors.
func (h *ScanHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	scanID, err := extractScanIDFromPath(r)
	if err != nil {
		writeError(w, r, errors.NewScanError(errors.CodeValidation, err.Error()))
		return
	}

	result, err := h.orchestrator.GetResults(r.Context(), scanID)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotReady) {
			h.writeInFlightResult(w, r, scanID)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeInFlightResult answers a results request for a scan that has not
// finished: same shape as a finished scan, empty lists, live status.
func (h *ScanHandler) writeInFlightResult(w http.ResponseWriter, r *http.Request, scanID string) {
	record, err := h.orchestrator.Registry().Get(scanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scan.ScanResult{
		ScanID:        record.ScanID,
		Name:          record.Name,
		Targets:       record.Targets,
		Status:        record.Status,
		ResultDetails: []scan.ResultDetail{},
		ResultSummary: []scan.ResultSummary{},
	})
}

func recordToStatusResponse(record *registry.ScanRecord) ScanStatusResponse {
	return ScanStatusResponse{
		ScanID:     record.ScanID,
		Name:       record.Name,
		Targets:    record.Targets,
		Status:     string(record.Status),
		LastPolled: record.LastPolled,
		CreatedAt:  record.CreatedAt,
	}
}

// File path: internal/api/workflow_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
)

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	reportID := strings.TrimSpace(r.URL.Query().Get("report_id"))
	if reportID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("report_id query parameter required"))
		return
	}
	state := s.workflow.Status(reportID)
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleWorkflowStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReportID string `json:"report_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reportID := strings.TrimSpace(req.ReportID)
	if reportID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("report_id is required"))
		return
	}
	if err := s.workflow.Stop(reportID); err != nil {
		writeError(w, workflowErrStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// handleLogs merges the process log history with workflow progress entries,
// dropping duplicates, ordered oldest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	combined := append([]common.LogEntry(nil), common.LogEntries()...)
	existing := make(map[string]struct{}, len(combined))
	for _, entry := range combined {
		existing[logEntryKey(entry.Time, entry.Level, entry.Message, entry.Component)] = struct{}{}
	}

	for _, entry := range s.workflow.Logs() {
		converted := common.LogEntry{
			Time:      entry.Time,
			Level:     strings.ToLower(entry.Level),
			Message:   entry.Message,
			Component: "workflow",
		}
		key := logEntryKey(converted.Time, converted.Level, converted.Message, converted.Component)
		if _, ok := existing[key]; ok {
			continue
		}
		combined = append(combined, converted)
		existing[key] = struct{}{}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Time.Equal(combined[j].Time) {
			if combined[i].Component == combined[j].Component {
				if combined[i].Level == combined[j].Level {
					return combined[i].Message < combined[j].Message
				}
				return combined[i].Level < combined[j].Level
			}
			return combined[i].Component < combined[j].Component
		}
		return combined[i].Time.Before(combined[j].Time)
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": combined})
}

func logEntryKey(ts time.Time, level, message, component string) string {
	stamp := ts.UTC().Format(time.RFC3339Nano)
	return strings.Join([]string{stamp, strings.ToLower(strings.TrimSpace(level)), strings.TrimSpace(component), message}, "|")
}

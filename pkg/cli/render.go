package cli

import (
	"strconv"

	"raillake/internal/domain"
)

// Converters from domain records to the CLI's JSON shapes. Keys follow the
// HTTP API's snake_case so scripted callers see one vocabulary everywhere.

func versionJSON(v domain.TableVersion) map[string]interface{} {
	return map[string]interface{}{
		"table":           v.TableName,
		"version":         v.Version,
		"schema_revision": v.SchemaRevision,
		"row_count":       v.RowCount,
		"byte_size":       v.ByteSize,
		"content_hash":    v.ContentHash,
		"rule_name":       v.RuleName,
		"created_at":      formatTime(v.CreatedAt),
	}
}

func tableJSON(t domain.LayerTable) map[string]interface{} {
	return map[string]interface{}{
		"name":            t.Name,
		"layer":           t.Layer,
		"schema_revision": t.SchemaRevision,
		"current_version": t.CurrentVersion,
		"schema":          t.Schema,
		"created_at":      formatTime(t.CreatedAt),
		"updated_at":      formatTime(t.UpdatedAt),
	}
}

func stepRunJSON(s domain.StepRun) map[string]interface{} {
	m := map[string]interface{}{
		"step_name":   s.StepName,
		"step_type":   s.StepType,
		"table":       s.TableName,
		"status":      s.Status,
		"retry_count": s.RetryAttempt,
	}
	if s.Version != nil {
		m["version"] = *s.Version
	}
	if s.RowCount != nil {
		m["row_count"] = *s.RowCount
	}
	if s.RejectedCount != nil {
		m["rejected_count"] = *s.RejectedCount
	}
	if s.ErrorMessage != nil {
		m["error"] = *s.ErrorMessage
	}
	return m
}

func runJSON(r domain.PipelineRun) map[string]interface{} {
	m := map[string]interface{}{
		"id":           r.ID,
		"status":       r.Status,
		"trigger_type": r.TriggerType,
		"created_at":   formatTime(r.CreatedAt),
	}
	if r.StartedAt != nil {
		m["started_at"] = formatTime(*r.StartedAt)
	}
	if r.FinishedAt != nil {
		m["finished_at"] = formatTime(*r.FinishedAt)
	}
	if r.ErrorMessage != nil {
		m["error"] = *r.ErrorMessage
	}
	return m
}

// rowsJSON converts stored rows for JSON output. Temporal values become
// strings; everything else keeps its native type.
func rowsJSON(schema domain.Schema, rows []domain.Row) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		conv := make([]interface{}, len(row))
		for j, v := range row {
			if v == nil || j >= len(schema) {
				conv[j] = v
				continue
			}
			switch schema[j].Type {
			case domain.TypeDate, domain.TypeTimestamp:
				conv[j] = domain.FormatValue(schema[j].Type, v)
			default:
				conv[j] = v
			}
		}
		out[i] = conv
	}
	return out
}

func stepRow(s domain.StepRun) []string {
	return []string{
		s.StepName,
		s.StepType,
		s.TableName,
		formatInt64Ptr(s.Version),
		formatInt64Ptr(s.RowCount),
		formatInt64Ptr(s.RejectedCount),
		s.Status,
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

package output

import (
	"fmt"
	"strings"
	"time"

	"goclockin/storage"
)

// Writer exports journal records to a file.
type Writer interface {
	Write(path string, records []storage.ActionRecord) error
}

func WriterForFormat(format string) (Writer, error) {
	switch normalizeFormat(format) {
	case "csv":
		return &CSVWriter{}, nil
	case "excel", "xlsx":
		return &ExcelWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func normalizeFormat(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

var journalHeaders = []string{"At", "Account", "Kind", "Source", "Decision", "ShiftID", "EffectiveAt", "Warning", "Outcome", "Error"}

func journalRow(record storage.ActionRecord) []string {
	effective := ""
	if record.EffectiveAt != nil {
		effective = record.EffectiveAt.Format(time.RFC3339)
	}
	return []string{
		record.At.Format(time.RFC3339),
		record.Account,
		record.Kind,
		record.Source,
		record.Decision,
		record.ShiftID,
		effective,
		record.Warning,
		record.Outcome,
		record.Error,
	}
}

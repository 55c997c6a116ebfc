package evidence

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/fabworks/fabops/backend/internal/audit"
)

// csvColumns is the fixed 17-column export layout.
var csvColumns = []string{
	"Timestamp",
	"Entity Type",
	"Entity ID",
	"Change Type",
	"Version",
	"Status",
	"Changed By User ID",
	"Changed By User Name",
	"IP Address",
	"User Agent",
	"Reason",
	"Customer Approved",
	"Approval Timestamp",
	"Material Changes",
	"Progress Notes",
	"Attachments",
	"Full Data Snapshot",
}

// WriteCSV renders a timeline as RFC 4180 CSV: fields containing commas,
// quotes, or newlines are quoted with internal quotes doubled, JSON-valued
// fields are written as their serialized form, and absent fields render
// empty.
func WriteCSV(w io.Writer, timeline []audit.Entry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return err
	}

	for _, entry := range timeline {
		record := []string{
			isoTime(entry.CreatedAt),
			string(entry.EntityType),
			entry.EntityID,
			string(entry.ChangeType),
			strconv.FormatInt(entry.Version, 10),
			entry.Status,
			entry.ChangedBy,
			entry.ChangedByName,
			entry.IPAddress,
			entry.UserAgent,
			entry.ChangeReason,
			boolField(entry.CustomerApproved),
			timeField(entry.ApprovalTimestamp),
			string(entry.MaterialChanges),
			entry.ProgressNotes,
			string(entry.Attachments),
			string(entry.Data),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func boolField(value *bool) string {
	if value == nil {
		return ""
	}
	return strconv.FormatBool(*value)
}

func timeField(value *time.Time) string {
	if value == nil {
		return ""
	}
	return isoTime(*value)
}

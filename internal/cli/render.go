package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/engine"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows under headers with the package table styles.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		String()
}

// RenderBatch writes a batch summary. Processed movements are listed only
// when verbose; everything else always is.
func RenderBatch(w io.Writer, result *engine.BatchResult, verbose bool) error {
	summary := strings.Join([]string{
		fmt.Sprintf("Claimed:    %d", result.ClaimedCount),
		SuccessStyle.Render(fmt.Sprintf("Processed:  %d", result.ProcessedCount)),
		ErrorStyle.Render(fmt.Sprintf("Errors:     %d", result.ErrorCount)),
		WarningStyle.Render(fmt.Sprintf("Conflicts:  %d", result.ConflictCount)),
		fmt.Sprintf("Skipped:    %d", result.SkippedCount),
		fmt.Sprintf("Not found:  %d", result.NotFoundCount),
		SubtleStyle.Render(fmt.Sprintf("Import runs %s in %s", joinIDs(result.RunIDs), result.Duration.Round(time.Millisecond))),
	}, "\n")

	var rows [][]string
	for _, o := range result.Outcomes {
		if o.Status == engine.OutcomeProcessed && !verbose {
			continue
		}
		rows = append(rows, []string{
			strconv.FormatInt(o.StagingID, 10),
			statusLabel(o.Status),
			posted(o.PostedMovementID),
			o.Message,
		})
	}

	out := RenderBox("Posting batch", summary) + "\n"
	if len(rows) > 0 {
		out += Table([]string{"STAGING", "STATUS", "POSTED", "DETAIL"}, rows) + "\n"
	}
	_, err := fmt.Fprint(w, out)
	return err
}

// RenderConflicts writes the ambiguous external mappings, or a success line.
func RenderConflicts(w io.Writer, conflicts []engine.MappingConflict) error {
	if len(conflicts) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess("No ambiguous external mappings"))
		return err
	}

	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		rows = append(rows, []string{c.Mapping.String(), strings.Join(c.Codes, ", ")})
	}
	_, err := fmt.Fprintln(w, FormatWarning(fmt.Sprintf("%d ambiguous external mappings", len(conflicts)))+"\n"+
		Table([]string{"MAPPING", "OPERATION TYPES"}, rows))
	return err
}

// RenderOperationTypes writes operation types as a table.
func RenderOperationTypes(w io.Writer, types []model.OperationType) error {
	rows := make([][]string, 0, len(types))
	for _, t := range types {
		mappings := make([]string, 0, len(t.ExternalMappings))
		for _, m := range t.ExternalMappings {
			mappings = append(mappings, m.String())
		}
		active := "yes"
		if !t.Active {
			active = "no"
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Code,
			string(t.AvailableSign),
			string(t.BlockedSign),
			strings.Join(mappings, " "),
			active,
		})
	}
	_, err := fmt.Fprintln(w, Table([]string{"ID", "CODE", "AVAILABLE", "BLOCKED", "MAPPINGS", "ACTIVE"}, rows))
	return err
}

// RenderAccounts writes accounts as a table.
func RenderAccounts(w io.Writer, accounts []model.Account) error {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.ExternalID,
			a.Currency,
			a.AvailableBalance.StringFixed(int32(model.MinorUnits(a.Currency))),
			a.BlockedBalance.StringFixed(int32(model.MinorUnits(a.Currency))),
			strconv.FormatInt(a.Version, 10),
		})
	}
	_, err := fmt.Fprintln(w, Table([]string{"ID", "EXTERNAL ID", "CURRENCY", "AVAILABLE", "BLOCKED", "VERSION"}, rows))
	return err
}

// RenderImportRuns writes import runs as a table.
func RenderImportRuns(w io.Writer, runs []model.ImportRun) error {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			string(r.Status),
			r.AccountRangeStart + ".." + r.AccountRangeEnd,
			strconv.Itoa(r.TotalCount),
			strconv.Itoa(r.ImportedCount),
			strconv.Itoa(r.FailedCount),
			completed,
		})
	}
	_, err := fmt.Fprintln(w, Table([]string{"ID", "STATUS", "ACCOUNTS", "TOTAL", "IMPORTED", "FAILED", "COMPLETED"}, rows))
	return err
}

func statusLabel(s engine.OutcomeStatus) string {
	switch s {
	case engine.OutcomeProcessed:
		return SuccessStyle.Render(SuccessIcon + " " + string(s))
	case engine.OutcomeError:
		return ErrorStyle.Render(ErrorIcon + " " + string(s))
	case engine.OutcomeConflict:
		return WarningStyle.Render(ConflictIcon + " " + string(s))
	default:
		return SubtleStyle.Render(SkipIcon + " " + string(s))
	}
}

func posted(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// RenderStaging writes staging movements as a table.
func RenderStaging(w io.Writer, movements []model.StagingMovement) error {
	rows := make([][]string, 0, len(movements))
	for _, m := range movements {
		account := m.ExternalAccountID
		if m.IsTransfer() {
			account = *m.SenderExternalAccountID + " -> " + *m.ReceiverExternalAccountID
		}
		var postedID int64
		if m.PostedMovementID != nil {
			postedID = *m.PostedMovementID
		}
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			strconv.FormatInt(m.ImportRunID, 10),
			account,
			m.SignedAmount.String() + " " + m.Currency,
			m.OperationRef.String(),
			string(m.ReviewStatus),
			string(m.ImportStatus),
			posted(postedID),
			m.ErrorMessage,
		})
	}
	_, err := fmt.Fprintln(w, Table([]string{"ID", "RUN", "ACCOUNT", "AMOUNT", "OPERATION", "REVIEW", "IMPORT", "POSTED", "ERROR"}, rows))
	return err
}

// RenderAlerts writes alerts as a table.
func RenderAlerts(w io.Writer, alerts []model.Alert) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess("No alerts"))
		return err
	}
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			a.AlertType,
			strconv.FormatInt(a.StagingMovementID, 10),
			a.Message,
		})
	}
	_, err := fmt.Fprintln(w, Table([]string{"RAISED", "TYPE", "STAGING", "MESSAGE"}, rows))
	return err
}

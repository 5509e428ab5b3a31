package export

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/mtlprog/investdash/internal/valuation"
)

// SheetsWriter mirrors stored snapshots into a Google Sheets document. Each
// tracked user gets a HOLDINGS sheet rewritten on every run and a NETWORTH
// sheet that grows by one row per run.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
	now           func() time.Time
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc, now: time.Now}, nil
}

// sheetNames returns the per-user sheet titles. Only a key prefix is used so
// the document never holds full user keys.
func sheetNames(userKey string) (holdings, netWorth string) {
	suffix := userKey
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "HOLDINGS_" + suffix, "NETWORTH_" + suffix
}

// Export implements worker.AfterSnapshotHook.
func (w *SheetsWriter) Export(ctx context.Context, userKey string, d valuation.Dashboard) error {
	holdings, netWorth := sheetNames(userKey)
	ids, err := w.ensureSheets(ctx, holdings, netWorth)
	if err != nil {
		return err
	}

	_, err = w.svc.Spreadsheets.Values.Clear(
		w.spreadsheetID, holdings+"!A:G", &sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing %s: %w", holdings, err)
	}

	rows := holdingRows(d)
	totalsAt := len(rows) + 2
	_, err = w.svc.Spreadsheets.Values.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateValuesRequest{
			ValueInputOption: "USER_ENTERED",
			Data: []*sheets.ValueRange{
				{Range: holdings + "!A1", Values: rows},
				{Range: fmt.Sprintf("%s!A%d", holdings, totalsAt), Values: totalRows(d)},
			},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing %s: %w", holdings, err)
	}

	if err := w.appendNetWorth(ctx, netWorth, d); err != nil {
		return err
	}

	return w.freezeHeaders(ctx, ids[holdings], ids[netWorth])
}

// appendNetWorth writes the header if the sheet is empty, then appends one row.
func (w *SheetsWriter) appendNetWorth(ctx context.Context, sheet string, d valuation.Dashboard) error {
	existing, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, sheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", sheet, err)
	}
	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			sheet+"!A1",
			&sheets.ValueRange{Values: [][]any{netWorthHeader(d.Pivot)}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", sheet, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		sheet+"!A:E",
		&sheets.ValueRange{Values: [][]any{netWorthRow(d, w.now())}},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s row: %w", sheet, err)
	}
	return nil
}

func (w *SheetsWriter) freezeHeaders(ctx context.Context, sheetIDs ...int64) error {
	var reqs []*sheets.Request
	for _, id := range sheetIDs {
		reqs = append(reqs, &sheets.Request{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        id,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		})
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("freezing header rows: %w", err)
	}
	return nil
}

// ensureSheets creates any of the named sheets that do not already exist and
// returns the sheet id of every name.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]int64, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	ids := make(map[string]int64, len(names))
	for _, s := range spreadsheet.Sheets {
		ids[s.Properties.Title] = s.Properties.SheetId
	}

	var requests []*sheets.Request
	for _, name := range names {
		if _, ok := ids[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return ids, nil
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating sheets: %w", err)
	}
	for _, r := range resp.Replies {
		if r.AddSheet != nil && r.AddSheet.Properties != nil {
			ids[r.AddSheet.Properties.Title] = r.AddSheet.Properties.SheetId
		}
	}

	return ids, nil
}

package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// spreadsheetAPI is the subset of the Sheets API the writer uses.
type spreadsheetAPI interface {
	Create(ctx context.Context, title, timeZone string, tabs []string) (id, url string, err error)
	Tabs(ctx context.Context, spreadsheetID string) (map[string]int64, error)
	AddTabs(ctx context.Context, spreadsheetID string, titles []string) (map[string]int64, error)
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
	BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error
}

// Writer implements service.ReportWriter for Google Sheets.
type Writer struct {
	api    spreadsheetAPI
	logger *slog.Logger
	config Config
}

var _ service.ReportWriter = (*Writer)(nil)

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(&serviceAPI{srv: srv}, config), nil
}

func newWriter(api spreadsheetAPI, config Config) *Writer {
	return &Writer{
		api:    api,
		config: config,
		logger: slog.Default().With("component", "sheets"),
	}
}

// Write replaces the contents of the Summary, Classifications and
// Resolutions tabs with the report.
func (w *Writer) Write(ctx context.Context, report *service.Report) error {
	w.logger.Info("starting sheets export",
		"run_id", report.RunID,
		"classifications", len(report.Classifications),
		"resolutions", len(report.Resolutions))

	spreadsheetID, tabIDs, err := w.prepareSpreadsheet(ctx)
	if err != nil {
		return err
	}

	tables := map[string][][]any{
		TabSummary:         summaryValues(report),
		TabClassifications: classificationValues(report.Classifications),
		TabResolutions:     resolutionValues(report.Resolutions),
	}

	for _, tab := range Tabs {
		values := tables[tab]
		err := common.WithRetry(ctx, func() error {
			return w.replaceTab(ctx, spreadsheetID, tab, values)
		}, w.retryOptions())
		if err != nil {
			return fmt.Errorf("failed to write %s tab: %w", tab, err)
		}
	}

	if w.config.EnableFormatting {
		err := common.WithRetry(ctx, func() error {
			return classifyAPIError(w.api.BatchUpdate(ctx, spreadsheetID, formatRequests(tabIDs)))
		}, w.retryOptions())
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("sheets export completed", "spreadsheet_id", spreadsheetID)
	return nil
}

func (w *Writer) retryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// prepareSpreadsheet returns the target spreadsheet and the sheet IDs of
// its tabs, creating the spreadsheet or any missing tabs as needed.
func (w *Writer) prepareSpreadsheet(ctx context.Context) (string, map[string]int64, error) {
	if w.config.SpreadsheetID == "" {
		id, url, err := w.api.Create(ctx, w.config.SpreadsheetName, w.config.TimeZone, Tabs)
		if err != nil {
			return "", nil, fmt.Errorf("unable to create spreadsheet: %w", err)
		}
		w.logger.Info("created new spreadsheet", "id", id, "url", url)

		tabIDs, err := w.api.Tabs(ctx, id)
		if err != nil {
			return "", nil, fmt.Errorf("unable to read spreadsheet %s: %w", id, err)
		}
		return id, tabIDs, nil
	}

	id := w.config.SpreadsheetID
	tabIDs, err := w.api.Tabs(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("unable to access spreadsheet %s: %w", id, err)
	}

	var missing []string
	for _, tab := range Tabs {
		if _, ok := tabIDs[tab]; !ok {
			missing = append(missing, tab)
		}
	}
	if len(missing) > 0 {
		added, err := w.api.AddTabs(ctx, id, missing)
		if err != nil {
			return "", nil, fmt.Errorf("unable to add tabs %v: %w", missing, err)
		}
		for title, sheetID := range added {
			tabIDs[title] = sheetID
		}
	}

	return id, tabIDs, nil
}

// replaceTab clears a tab and writes values in batches.
func (w *Writer) replaceTab(ctx context.Context, spreadsheetID, tab string, values [][]any) error {
	if err := w.api.Clear(ctx, spreadsheetID, tabRange(tab, "A:Z")); err != nil {
		return classifyAPIError(err)
	}

	for i := 0; i < len(values); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(values))
		batch := values[i:end]

		if err := w.api.Update(ctx, spreadsheetID, tabRange(tab, fmt.Sprintf("A%d", i+1)), batch); err != nil {
			return classifyAPIError(fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err))
		}
		w.logger.Debug("wrote batch", "tab", tab, "start_row", i+1, "rows", len(batch))
	}
	return nil
}

// classifyAPIError retries throttling and server failures; other API
// errors such as permission or not-found are returned immediately.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true}
	case apiErr.Code >= http.StatusInternalServerError:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return &common.RetryableError{Err: err, Retryable: false}
	}
}

// formatRequests bolds and freezes each tab's header row and sizes columns.
func formatRequests(tabIDs map[string]int64) []*sheets.Request {
	headerRows := map[string]int64{
		TabSummary:         1,
		TabClassifications: 1,
		TabResolutions:     1,
	}
	var requests []*sheets.Request
	for _, tab := range Tabs {
		sheetID, ok := tabIDs[tab]
		if !ok {
			continue
		}
		requests = append(requests,
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:       sheetID,
						StartRowIndex: 0,
						EndRowIndex:   headerRows[tab],
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							TextFormat: &sheets.TextFormat{Bold: true},
						},
					},
					Fields: "userEnteredFormat.textFormat",
				},
			},
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        sheetID,
						GridProperties: &sheets.GridProperties{FrozenRowCount: headerRows[tab]},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
			&sheets.Request{
				AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
					Dimensions: &sheets.DimensionRange{
						SheetId:    sheetID,
						Dimension:  "COLUMNS",
						StartIndex: 0,
						EndIndex:   5,
					},
				},
			},
		)
	}
	return requests
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		if config.RefreshToken == "" {
			saved, err := LoadToken(config.TokenFile)
			if err != nil {
				return nil, fmt.Errorf("unable to load token from %s: %w", config.TokenFile, err)
			}
			token = saved
		}
		tokenSource = oauthConfig(config.ClientID, config.ClientSecret, "").TokenSource(ctx, token)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// serviceAPI adapts *sheets.Service to spreadsheetAPI.
type serviceAPI struct {
	srv *sheets.Service
}

func (a *serviceAPI) Create(ctx context.Context, title, timeZone string, tabs []string) (string, string, error) {
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title, TimeZone: timeZone},
	}
	for _, tab := range tabs {
		spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: tab},
		})
	}

	created, err := a.srv.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", "", err
	}
	return created.SpreadsheetId, created.SpreadsheetUrl, nil
}

func (a *serviceAPI) Tabs(ctx context.Context, spreadsheetID string) (map[string]int64, error) {
	spreadsheet, err := a.srv.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	tabs := make(map[string]int64, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			tabs[sheet.Properties.Title] = sheet.Properties.SheetId
		}
	}
	return tabs, nil
}

func (a *serviceAPI) AddTabs(ctx context.Context, spreadsheetID string, titles []string) (map[string]int64, error) {
	requests := make([]*sheets.Request, 0, len(titles))
	for _, title := range titles {
		requests = append(requests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		})
	}

	resp, err := a.srv.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	added := make(map[string]int64, len(titles))
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			added[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
		}
	}
	return added, nil
}

func (a *serviceAPI) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := a.srv.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (a *serviceAPI) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) error {
	_, err := a.srv.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (a *serviceAPI) BatchUpdate(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error {
	_, err := a.srv.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	return err
}

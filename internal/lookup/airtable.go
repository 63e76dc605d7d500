package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eargollo/shelfscan/internal/metrics"
)

// DefaultBaseURL is the public Airtable REST endpoint.
const DefaultBaseURL = "https://api.airtable.com/v0"

// AirtableConfig locates one table. Every value comes from configuration.
type AirtableConfig struct {
	BaseURL string
	BaseID  string
	Table   string
	// Field is the column holding the code.
	Field   string
	APIKey  string
	Timeout time.Duration
}

// APIError is a non-200 answer from Airtable.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Type != "" && e.Message != "":
		return fmt.Sprintf("airtable: status %d: %s: %s", e.StatusCode, e.Type, e.Message)
	case e.Type != "":
		return fmt.Sprintf("airtable: status %d: %s", e.StatusCode, e.Type)
	default:
		return fmt.Sprintf("airtable: status %d", e.StatusCode)
	}
}

// Airtable looks codes up in one Airtable table.
type Airtable struct {
	cfg        AirtableConfig
	httpClient *http.Client
}

// NewAirtable returns a client for cfg.
func NewAirtable(cfg AirtableConfig) *Airtable {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Airtable{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name is "<base>/<table>", used as the record source and cache namespace.
func (a *Airtable) Name() string { return a.cfg.BaseID + "/" + a.cfg.Table }

type airtableRecord struct {
	ID          string         `json:"id"`
	CreatedTime time.Time      `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type airtableList struct {
	Records []airtableRecord `json:"records"`
}

// Lookup returns the first record whose code field equals code.
func (a *Airtable) Lookup(ctx context.Context, code string) (*Record, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	began := time.Now()
	defer func() {
		metrics.LookupDuration.WithLabelValues("airtable").Observe(time.Since(began).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.queryURL(code), nil)
	if err != nil {
		return nil, fmt.Errorf("build airtable request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("airtable request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var list airtableList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode airtable response: %w", err)
	}
	if len(list.Records) == 0 {
		return nil, ErrNoRecord
	}
	r := list.Records[0]
	slog.Debug("airtable record found", "table", a.Name(), "code", code, "record", r.ID)
	return &Record{ID: r.ID, CreatedTime: r.CreatedTime, Fields: r.Fields, Source: a.Name()}, nil
}

func (a *Airtable) queryURL(code string) string {
	q := url.Values{}
	q.Set("filterByFormula", Formula(a.cfg.Field, code))
	q.Set("maxRecords", "1")
	return fmt.Sprintf("%s/%s/%s?%s",
		strings.TrimRight(a.cfg.BaseURL, "/"),
		url.PathEscape(a.cfg.BaseID),
		url.PathEscape(a.cfg.Table),
		q.Encode())
}

// Formula builds the filterByFormula expression matching field to code.
// The code is quoted as a formula string literal.
func Formula(field, code string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return fmt.Sprintf(`({%s}="%s")`, field, r.Replace(code))
}

// decodeAPIError reads both error shapes Airtable uses:
// {"error":"NOT_FOUND"} and {"error":{"type":...,"message":...}}.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Error) == 0 {
		return apiErr
	}
	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		apiErr.Type, apiErr.Message = detail.Type, detail.Message
		return apiErr
	}
	var typ string
	if err := json.Unmarshal(envelope.Error, &typ); err == nil {
		apiErr.Type = typ
	}
	return apiErr
}

// IsAuthError reports whether err is an Airtable credential or permission
// rejection.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

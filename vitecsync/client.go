package vitecsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DirectoryClient reads the external system of record. This engine never
// writes through it.
type DirectoryClient interface {
	ListOffices(ctx context.Context) ([]VitecOffice, error)
	ListEmployees(ctx context.Context) ([]VitecEmployee, error)
}

type vitecClient struct {
	baseURL        string
	installationId string
	apiKey         string
	apiKeyHdr      string
	http           *http.Client
	limiter        <-chan time.Time
}

// NewVitecClient builds the Vitec Next directory client from env:
// VITEC_API_BASE_URL, VITEC_INSTALLATION_ID, VITEC_API_KEY_HEADER,
// VITEC_RATE_LIMIT_PER_MIN.
func NewVitecClient(apiKey string) (DirectoryClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("VITEC_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.vitecnext.no"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("VITEC_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("vitec api key is empty")
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("VITEC_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &vitecClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		installationId: strings.TrimSpace(os.Getenv("VITEC_INSTALLATION_ID")),
		apiKey:         apiKey,
		apiKeyHdr:      apiKeyHeader,
		http:           &http.Client{Timeout: 30 * time.Second},
		limiter:        time.Tick(interval),
	}, nil
}

type vitecListResponse struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
	HasMore    *bool             `json:"has_more"`
}

func (c *vitecClient) getList(ctx context.Context, path string, params url.Values) (vitecListResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return vitecListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if c.installationId != "" {
		req.Header.Set("X-Installation-Id", c.installationId)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return vitecListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return vitecListResponse{}, fmt.Errorf("vitec api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed vitecListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return vitecListResponse{}, err
	}
	return parsed, nil
}

func (c *vitecClient) ListOffices(ctx context.Context) ([]VitecOffice, error) {
	path := strings.TrimSpace(os.Getenv("VITEC_OFFICES_PATH"))
	if path == "" {
		path = "/v1/departments"
	}

	var offices []VitecOffice
	cursor := ""
	for {
		params := url.Values{}
		params.Set("limit", "200")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		resp, err := c.getList(ctx, path, params)
		if err != nil {
			return nil, err
		}

		items := resp.Data
		if len(items) == 0 {
			items = resp.Items
		}
		for _, raw := range items {
			var office VitecOffice
			if err := json.Unmarshal(raw, &office); err != nil {
				return nil, fmt.Errorf("decoding department payload: %w", err)
			}
			offices = append(offices, office)
		}

		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			return offices, nil
		}
		cursor = resp.NextCursor
	}
}

func (c *vitecClient) ListEmployees(ctx context.Context) ([]VitecEmployee, error) {
	path := strings.TrimSpace(os.Getenv("VITEC_EMPLOYEES_PATH"))
	if path == "" {
		path = "/v1/employees"
	}

	var employees []VitecEmployee
	cursor := ""
	for {
		params := url.Values{}
		params.Set("limit", "200")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		resp, err := c.getList(ctx, path, params)
		if err != nil {
			return nil, err
		}

		items := resp.Data
		if len(items) == 0 {
			items = resp.Items
		}
		for _, raw := range items {
			var employee VitecEmployee
			if err := json.Unmarshal(raw, &employee); err != nil {
				return nil, fmt.Errorf("decoding employee payload: %w", err)
			}
			employees = append(employees, employee)
		}

		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			return employees, nil
		}
		cursor = resp.NextCursor
	}
}

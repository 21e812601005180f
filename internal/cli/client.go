package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api, CLI не импортирует internal/api) ---

// JobResponse — запись журнала jobs из API агента.
type JobResponse struct {
	RequestID  string `json:"request_id"`
	JobID      string `json:"job_id"`
	JobName    string `json:"job_name"`
	HostType   string `json:"host_type"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// ListJobsOpts — параметры выборки jobs.
type ListJobsOpts struct {
	Limit int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент диагностического API агента.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListJobs возвращает последние записи журнала jobs.
func (c *Client) ListJobs(opts ListJobsOpts) ([]JobResponse, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var jobs []JobResponse
	err := c.list("/api/v1/jobs", params, &jobs)
	return jobs, err
}

// GetJob возвращает запись журнала по идентификатору запроса.
func (c *Client) GetJob(requestID string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+requestID, &job)
	return &job, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	resp, err := c.do(http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(dr.Data, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(lr.Data) == 0 || string(lr.Data) == "null" {
		return nil
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) do(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

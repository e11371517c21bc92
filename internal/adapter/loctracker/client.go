// Package loctracker implements the dispatch API client: task submission to
// devices and retrieval of device-reported task positions.
package loctracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
)

// Client implements domain.Dispatcher against the LocTracker fleet API.
// The API authenticates with a password carried in the request body (POST)
// or query string (GET); there is no auth header.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a dispatch client. baseURL must end with a slash.
func NewClient(baseURL, username, password string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// SubmitTask appends one task to the device's plan and returns the assigned
// task id.
func (c *Client) SubmitTask(ctx context.Context, task domain.TaskRecord, deviceNumber string) (string, error) {
	u := fmt.Sprintf("%s%s/tasks/%s/last", c.baseURL, c.username, url.PathEscape(deviceNumber))
	payload := singleRequest{
		Password:       c.password,
		PlanFromDevice: true,
		Task:           task,
	}

	var resp singleResponse
	if err := c.post(ctx, u, "submit task", payload, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", &domain.DispatchError{Op: "submit task", Err: fmt.Errorf("response carries no task id")}
	}
	return resp.TaskID.String(), nil
}

// SubmitTasks appends a batch to the device's plan and returns the assigned
// task ids in submission order.
func (c *Client) SubmitTasks(ctx context.Context, tasks []domain.TaskRecord, deviceNumber string) ([]string, error) {
	u := fmt.Sprintf("%s%s/tasks/%s/last/bulk", c.baseURL, c.username, url.PathEscape(deviceNumber))
	payload := bulkRequest{
		Password:       c.password,
		PlanFromDevice: true,
		Tasks:          tasks,
	}

	var resp bulkResponse
	if err := c.post(ctx, u, "submit tasks", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, &domain.DispatchError{Op: "submit tasks", Err: fmt.Errorf("API status %d", resp.Status)}
	}
	if len(resp.TaskIDs) != len(tasks) {
		return nil, &domain.DispatchError{
			Op:  "submit tasks",
			Err: fmt.Errorf("%d task ids returned for %d tasks", len(resp.TaskIDs), len(tasks)),
		}
	}

	ids := make([]string, len(resp.TaskIDs))
	for i, id := range resp.TaskIDs {
		ids[i] = id.String()
	}
	return ids, nil
}

// FetchTasks retrieves tasks by id with the device-reported coordinates for
// each. Ids travel as a single `;`-joined query parameter; callers chunk the
// list to bound URL length.
func (c *Client) FetchTasks(ctx context.Context, taskIDs []string) ([]domain.FleetTask, error) {
	params := url.Values{
		"password": {c.password},
		"taskIds":  {strings.Join(taskIDs, ";")},
	}
	u := fmt.Sprintf("%s%s/tasks?%s", c.baseURL, c.username, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &domain.DispatchError{Op: "fetch tasks", Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.DispatchError{Op: "fetch tasks", Err: err}
	}
	defer resp.Body.Close()
	c.metrics.DispatchAPIDuration.WithLabelValues("fetch").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, &domain.DispatchError{
			Op:  "fetch tasks",
			Err: fmt.Errorf("API error: status %d: %s", resp.StatusCode, errBody),
		}
	}

	var fr fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, &domain.DispatchError{Op: "fetch tasks", Err: fmt.Errorf("decode response: %w", err)}
	}
	if fr.Status != http.StatusOK {
		return nil, &domain.DispatchError{Op: "fetch tasks", Err: fmt.Errorf("API status %d", fr.Status)}
	}

	out := make([]domain.FleetTask, 0, len(fr.Tasks))
	for _, t := range fr.Tasks {
		out = append(out, domain.FleetTask{
			TaskID: t.TaskID.String(),
			Lat:    t.Lat,
			Lng:    t.Lng,
		})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, u, op string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.DispatchError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return &domain.DispatchError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.DispatchError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.DispatchAPIDuration.WithLabelValues("submit").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return &domain.DispatchError{Op: op, Err: fmt.Errorf("API error: status %d: %s", resp.StatusCode, errBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.DispatchError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// LocTracker wire types. Task ids arrive as bare numbers but are kept as
// strings end to end; json.Number avoids float64 precision loss on large
// ids.

type singleRequest struct {
	Password       string            `json:"password"`
	PlanFromDevice bool              `json:"planFromDevice"`
	Task           domain.TaskRecord `json:"task"`
}

type bulkRequest struct {
	Password       string              `json:"password"`
	PlanFromDevice bool                `json:"planFromDevice"`
	Tasks          []domain.TaskRecord `json:"tasks"`
}

type singleResponse struct {
	Status int         `json:"status"`
	TaskID json.Number `json:"taskId"`
}

type bulkResponse struct {
	Status  int           `json:"status"`
	TaskIDs []json.Number `json:"taskIds"`
}

type fetchResponse struct {
	Status int `json:"status"`
	Tasks  []struct {
		TaskID json.Number `json:"taskId"`
		Lat    float64     `json:"lat"`
		Lng    float64     `json:"lng"`
	} `json:"tasks"`
}

package splunk

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/sources"
)

// Defaults for job polling.
const (
	DefaultPollInterval  = time.Second
	DefaultTimeout       = 2 * time.Minute
	DefaultStatusBuckets = 300

	cancelTimeout = 10 * time.Second
)

const (
	opSubmit = "submit"
	opStatus = "status"
	opAwait  = "await"
	opResult = "result"
	opCancel = "cancel"
)

// JobState is the lifecycle state of a search job.
type JobState int

const (
	StateSubmitted JobState = iota
	StateRunning
	StateDone
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseDispatchState maps the API's dispatchState onto JobState. Unknown
// states count as running; the await timeout bounds them.
func ParseDispatchState(state string) JobState {
	switch state {
	case "QUEUED", "PARSING":
		return StateSubmitted
	case "DONE":
		return StateDone
	case "FAILED":
		return StateFailed
	default:
		return StateRunning
	}
}

// SearchRequest describes a search to submit.
type SearchRequest struct {
	// Name prefixes the generated job id.
	Name     string
	Query    string
	Earliest string
	Latest   string
}

// Poller submits search jobs.
type Poller struct {
	client        *Client
	statusBuckets int
}

// NewPoller creates a poller. A non-positive statusBuckets uses DefaultStatusBuckets.
func NewPoller(client *Client, statusBuckets int) *Poller {
	if statusBuckets <= 0 {
		statusBuckets = DefaultStatusBuckets
	}
	return &Poller{client: client, statusBuckets: statusBuckets}
}

type submitResponse struct {
	SID string `json:"sid"`
}

// Submit creates a search job and returns a handle to it.
func (p *Poller) Submit(ctx context.Context, req SearchRequest) (*Job, error) {
	latest := req.Latest
	if latest == "" {
		latest = "now"
	}
	form := url.Values{
		"id":             {req.Name + "_" + uuid.NewString()},
		"search":         {req.Query},
		"earliest_time":  {req.Earliest},
		"latest_time":    {latest},
		"status_buckets": {strconv.Itoa(p.statusBuckets)},
		"output_mode":    {"json"},
	}

	var resp submitResponse
	if err := p.client.postForm(ctx, jobsPath, form, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, sources.NewError(sources.Search, opSubmit, req.Name, sources.ErrSubmission, err)
		}
		return nil, sources.Unavailable(sources.Search, opSubmit, req.Name, err)
	}
	if resp.SID == "" {
		return nil, sources.NewError(sources.Search, opSubmit, req.Name, sources.ErrSubmission,
			fmt.Errorf("response carried no sid"))
	}

	logger.Debug("search job submitted", "sid", resp.SID, "earliest", req.Earliest, "latest", latest)
	return &Job{SID: resp.SID, poller: p, state: StateSubmitted}, nil
}

// Job is a submitted search. It is not safe for concurrent use.
type Job struct {
	SID    string
	poller *Poller
	state  JobState
}

// State returns the last observed state.
func (j *Job) State() JobState {
	return j.state
}

type statusResponse struct {
	Entry []struct {
		Content struct {
			DispatchState string `json:"dispatchState"`
			Messages      []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"messages"`
		} `json:"content"`
	} `json:"entry"`
}

// PollStatus performs a single status check.
func (j *Job) PollStatus(ctx context.Context) (JobState, error) {
	metrics.SearchJobPolls.Inc()

	var resp statusResponse
	err := j.poller.client.getJSON(ctx, jobsPath+"/"+url.PathEscape(j.SID), url.Values{"output_mode": {"json"}}, &resp)
	if err != nil {
		return j.state, err
	}
	if len(resp.Entry) == 0 {
		return j.state, fmt.Errorf("status response for %s had no entries", j.SID)
	}

	j.state = ParseDispatchState(resp.Entry[0].Content.DispatchState)
	if j.state == StateFailed {
		for _, m := range resp.Entry[0].Content.Messages {
			logger.Warn("search job failed", "sid", j.SID, "type", m.Type, "message", m.Text)
		}
	}
	return j.state, nil
}

// AwaitCompletion polls every interval until the job is done. It gives up with
// ErrTimeoutExceeded once timeout has elapsed and issues no polls after that.
// On timeout or cancellation the remote job is cancelled.
func (j *Job) AwaitCompletion(ctx context.Context, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	deadline := time.Now().Add(timeout)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := j.PollStatus(pollCtx)
		switch {
		case ctx.Err() != nil:
			return j.abandon(ctx, "cancelled", ctx.Err())
		case pollCtx.Err() != nil:
			return j.timedOut(ctx, timeout)
		case err != nil:
			return sources.Unavailable(sources.Search, opStatus, j.SID, err)
		case state == StateDone:
			metrics.SearchJobs.WithLabelValues("done").Inc()
			return nil
		case state == StateFailed:
			metrics.SearchJobs.WithLabelValues("failed").Inc()
			return sources.NewError(sources.Search, opAwait, j.SID, sources.ErrJobFailed, nil)
		}

		select {
		case <-ctx.Done():
			return j.abandon(ctx, "cancelled", ctx.Err())
		case <-pollCtx.Done():
			return j.timedOut(ctx, timeout)
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				return j.timedOut(ctx, timeout)
			}
		}
	}
}

func (j *Job) timedOut(ctx context.Context, timeout time.Duration) error {
	return j.abandon(ctx, "timeout", sources.NewError(sources.Search, opAwait, j.SID, sources.ErrTimeoutExceeded,
		fmt.Errorf("job not done after %s (last state %s)", timeout, j.state)))
}

func (j *Job) abandon(ctx context.Context, outcome string, err error) error {
	metrics.SearchJobs.WithLabelValues(outcome).Inc()

	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if cancelErr := j.Cancel(cancelCtx); cancelErr != nil {
		logger.Warn("failed to cancel search job", "sid", j.SID, "error", cancelErr)
	}
	return err
}

// Cancel asks the API to stop the job and discard its results.
func (j *Job) Cancel(ctx context.Context) error {
	path := jobsPath + "/" + url.PathEscape(j.SID) + "/control"
	if err := j.poller.client.postForm(ctx, path, url.Values{"action": {"cancel"}}, nil); err != nil {
		return sources.Unavailable(sources.Search, opCancel, j.SID, err)
	}
	return nil
}

type summaryResponse struct {
	EventCount int64 `json:"event_count"`
}

// SummaryCount returns the job's total event count.
func (j *Job) SummaryCount(ctx context.Context) (int64, error) {
	if j.state != StateDone {
		return 0, sources.NewError(sources.Search, opResult, j.SID, sources.ErrJobNotDone, nil)
	}

	var resp summaryResponse
	path := jobsV2Path + "/" + url.PathEscape(j.SID) + "/summary"
	if err := j.poller.client.getJSON(ctx, path, url.Values{"output_mode": {"json"}}, &resp); err != nil {
		return 0, sources.Unavailable(sources.Search, opResult, j.SID, err)
	}
	return resp.EventCount, nil
}

type timelineResponse struct {
	Buckets []struct {
		TotalCount       int64  `json:"total_count"`
		EarliestStrftime string `json:"earliest_strftime"`
	} `json:"buckets"`
}

// HourlyBuckets returns the job's event timeline summed per UTC hour, newest first.
func (j *Job) HourlyBuckets(ctx context.Context) ([]models.BucketedCount, error) {
	if j.state != StateDone {
		return nil, sources.NewError(sources.Search, opResult, j.SID, sources.ErrJobNotDone, nil)
	}

	var resp timelineResponse
	path := jobsV2Path + "/" + url.PathEscape(j.SID) + "/timeline"
	if err := j.poller.client.getJSON(ctx, path, url.Values{"output_mode": {"json"}}, &resp); err != nil {
		return nil, sources.Unavailable(sources.Search, opResult, j.SID, err)
	}

	byHour := make(map[time.Time]int64, len(resp.Buckets))
	for _, b := range resp.Buckets {
		ts, err := time.Parse(time.RFC3339, b.EarliestStrftime)
		if err != nil {
			return nil, sources.NewError(sources.Search, opResult, j.SID, sources.ErrSchemaMismatch,
				fmt.Errorf("unexpected bucket time %q: %w", b.EarliestStrftime, err))
		}
		byHour[models.HourKey(ts)] += b.TotalCount
	}

	out := make([]models.BucketedCount, 0, len(byHour))
	for hour, count := range byHour {
		out = append(out, models.BucketedCount{Hour: hour, Count: count})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Hour.After(out[b].Hour) })
	return out, nil
}

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/pithecene-io/stratum/types"
)

// DefaultJobTimeout bounds the synchronous wait for a load job.
const DefaultJobTimeout = 300 * time.Second

// BigQueryConfig holds configuration for the BigQuery loader.
type BigQueryConfig struct {
	// ProjectID is the GCP project (required).
	ProjectID string
	// Dataset is the BigQuery dataset (required).
	Dataset string
	// GPSTable is the GPS records table name (required).
	GPSTable string
	// MobileTable is the mobile records table name (required).
	MobileTable string
	// Location is the dataset location (optional).
	Location string
	// JobTimeout bounds the synchronous wait per job (default 300s).
	JobTimeout time.Duration
	// MaxBadRecords is passed through to the load job (default 0).
	MaxBadRecords int64
}

// Validate checks that required BigQuery configuration is present.
func (c *BigQueryConfig) Validate() error {
	if c.ProjectID == "" {
		return errors.New("BigQuery project id is required")
	}
	if c.Dataset == "" {
		return errors.New("BigQuery dataset is required")
	}
	if c.GPSTable == "" || c.MobileTable == "" {
		return errors.New("BigQuery table names are required")
	}
	return nil
}

// BigQuery is the BigQuery implementation of Loader.
type BigQuery struct {
	client *bigquery.Client
	config BigQueryConfig
}

// NewBigQuery creates a BigQuery-backed loader.
func NewBigQuery(ctx context.Context, cfg BigQueryConfig) (*BigQuery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("warehouse: init client: %w", err)
	}
	return &BigQuery{client: client, config: cfg}, nil
}

// LoadFromURI implements Loader. Submits a load job with the fixed schema
// for kind (WRITE_APPEND, CREATE_IF_NEEDED, NDJSON, autodetect off,
// ignoreUnknownValues off) and waits for a terminal state. skipLeadingRows
// is never set; it does not apply to NDJSON.
//
// If the derived job id already exists, the previous submission of this
// batch is still the job of record: we attach to it and wait instead of
// loading the data twice.
func (b *BigQuery) LoadFromURI(ctx context.Context, uri string, kind types.Kind, metadata map[string]string) (*LoadResult, error) {
	table, err := tableFor(kind, b.config.GPSTable, b.config.MobileTable)
	if err != nil {
		return nil, err
	}

	gcsRef := bigquery.NewGCSReference(uri)
	gcsRef.SourceFormat = bigquery.JSON
	gcsRef.AutoDetect = false
	gcsRef.IgnoreUnknownValues = false
	gcsRef.MaxBadRecords = b.config.MaxBadRecords
	gcsRef.Schema = schemaFor(kind)

	loader := b.client.Dataset(b.config.Dataset).Table(table).LoaderFrom(gcsRef)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.Location = b.config.Location

	id := jobID(uri, kind, metadata)
	loader.JobID = id

	waitCtx, cancel := context.WithTimeout(ctx, b.config.JobTimeout)
	defer cancel()

	job, err := loader.Run(waitCtx)
	if err != nil {
		if isDuplicateJob(err) {
			job, err = b.client.JobFromID(waitCtx, id)
			if err != nil {
				return nil, fmt.Errorf("warehouse: attach to duplicate job %s: %w", id, err)
			}
		} else {
			return nil, fmt.Errorf("warehouse: submit job %s: %w", id, err)
		}
	}

	status, err := job.Wait(waitCtx)
	if err != nil {
		return nil, fmt.Errorf("warehouse: wait job %s: %w", id, err)
	}
	if err := status.Err(); err != nil {
		// DONE with job errors, not a clean DONE.
		return nil, fmt.Errorf("%w: job %s: %v", ErrJobFailed, id, jobErrorStrings(status))
	}

	result := &LoadResult{JobID: job.ID()}
	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		result.RowsWritten = stats.OutputRows
		result.BytesRead = stats.InputFileBytes
	}
	return result, nil
}

// JobStatus implements Loader.
func (b *BigQuery) JobStatus(ctx context.Context, id string) (*JobStatus, error) {
	job, err := b.client.JobFromID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("warehouse: job %s: %w", id, err)
	}
	status, err := job.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("warehouse: job status %s: %w", id, err)
	}

	out := &JobStatus{}
	switch status.State {
	case bigquery.Pending:
		out.State = StatePending
	case bigquery.Running:
		out.State = StateRunning
	case bigquery.Done:
		out.State = StateDone
		if status.Err() != nil {
			out.State = StateError
			out.Errors = jobErrorStrings(status)
		}
	}
	return out, nil
}

// Close releases the underlying client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

// isDuplicateJob reports whether a submit failed because the job id exists.
func isDuplicateJob(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}

// jobErrorStrings flattens a job status error list.
func jobErrorStrings(status *bigquery.JobStatus) []string {
	errs := make([]string, 0, len(status.Errors))
	for _, e := range status.Errors {
		errs = append(errs, e.Error())
	}
	return errs
}

// Verify BigQuery implements Loader.
var _ Loader = (*BigQuery)(nil)

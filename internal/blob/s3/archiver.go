package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/h2olabs/dcabot/internal/domain"
)

// ExecutionArchiver writes batches of execution records as gzipped
// JSON-lines objects, keyed by the batch's oldest execution date.
type ExecutionArchiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewExecutionArchiver creates an ExecutionArchiver. prefix namespaces the
// archive objects within the bucket, e.g. "executions".
func NewExecutionArchiver(c *Client, prefix string) *ExecutionArchiver {
	return &ExecutionArchiver{
		client: c.S3(),
		bucket: c.Bucket(),
		prefix: prefix,
	}
}

// archivedExecution is the line format inside an archive object. Amounts are
// decimal strings in smallest units.
type archivedExecution struct {
	ID         string    `json:"id"`
	PositionID string    `json:"positionId"`
	Period     int       `json:"period"`
	AmountIn   string    `json:"amountIn"`
	AmountOut  string    `json:"amountOut"`
	Price      string    `json:"price"`
	TxHash     string    `json:"txHash,omitempty"`
	ExecutedAt time.Time `json:"executedAt"`
}

// WriteExecutions uploads one batch and returns the object key it wrote.
func (a *ExecutionArchiver) WriteExecutions(ctx context.Context, recs []*domain.ExecutionRecord) (string, error) {
	if len(recs) == 0 {
		return "", fmt.Errorf("s3blob: empty archive batch")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, rec := range recs {
		line := archivedExecution{
			ID:         rec.ID,
			PositionID: rec.PositionID,
			Period:     rec.Period,
			AmountIn:   rec.AmountIn.String(),
			AmountOut:  rec.AmountOut.String(),
			Price:      rec.Price.String(),
			TxHash:     rec.TxHash,
			ExecutedAt: rec.ExecutedAt,
		}
		if err := enc.Encode(line); err != nil {
			return "", fmt.Errorf("s3blob: encode execution %s: %w", rec.ID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("s3blob: finish archive payload: %w", err)
	}

	oldest := recs[0].ExecutedAt.UTC()
	key := fmt.Sprintf("%s/%s/%s.jsonl.gz", a.prefix, oldest.Format("2006/01/02"), uuid.NewString())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/jsonl"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: put archive %s: %w", key, err)
	}
	return key, nil
}

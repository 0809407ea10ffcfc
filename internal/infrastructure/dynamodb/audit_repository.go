package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"curator-backend/internal/domain/decision"
	apperrors "curator-backend/internal/errors"
)

// auditPartition is the single partition key of the append-only log. Volume
// is bounded by routing throughput; a hot partition is not a concern here.
const auditPartition = "DECISION"

const (
	// auditRetryAttempts bounds background re-appends of a failed audit row.
	auditRetryAttempts = 3
	// auditRetryDelay is the base delay between re-append attempts, scaled
	// linearly by attempt number.
	auditRetryDelay = 2 * time.Second
	// auditRetryBuffer caps queued failed rows; beyond it rows are dropped
	// with a log line rather than blocking the routing path.
	auditRetryBuffer = 256
)

// auditAPI is the slice of the DynamoDB client the audit log uses.
type auditAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ddbDecision is the audit item layout. The decision body is stored as one
// JSON document so the schema never chases the decision model.
type ddbDecision struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"` // {createdAt}#{decisionId}
	DecisionID  string `dynamodbav:"DecisionID"`
	CandidateID string `dynamodbav:"CandidateID,omitempty"`
	Action      string `dynamodbav:"Action"`
	Body        string `dynamodbav:"Body"`
}

type auditRetryItem struct {
	item       map[string]types.AttributeValue
	decisionID string
	attempt    int
}

// AuditRepository is the append-only decision log on DynamoDB. Append never
// fails the caller: a failed write is queued for bounded background retries
// and, if those are exhausted too, dropped with a log line.
type AuditRepository struct {
	client    auditAPI
	tableName string
	logger    *zap.Logger

	retries    chan auditRetryItem
	retryDelay time.Duration
	done       chan struct{}
}

// NewAuditRepository creates a DynamoDB audit repository and starts its
// background retry worker.
func NewAuditRepository(client auditAPI, tableName string, logger *zap.Logger) *AuditRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AuditRepository{
		client:     client,
		tableName:  tableName,
		logger:     logger.Named("audit"),
		retries:    make(chan auditRetryItem, auditRetryBuffer),
		retryDelay: auditRetryDelay,
		done:       make(chan struct{}),
	}
	go r.retryLoop()
	return r
}

// Close stops the background retry worker. Queued rows are abandoned.
func (r *AuditRepository) Close() {
	close(r.done)
}

// Append records a decision.
func (r *AuditRepository) Append(ctx context.Context, d *decision.Decision) {
	if d == nil {
		return
	}

	body, err := json.Marshal(d)
	if err != nil {
		r.logger.Error("audit append failed to marshal decision",
			zap.String("decisionId", d.ID), zap.Error(err))
		return
	}
	item, err := attributevalue.MarshalMap(ddbDecision{
		PK:          auditPartition,
		SK:          fmt.Sprintf("%s#%s", d.CreatedAt.UTC().Format(time.RFC3339Nano), d.ID),
		DecisionID:  d.ID,
		CandidateID: d.CandidateID,
		Action:      string(d.Action),
		Body:        string(body),
	})
	if err != nil {
		r.logger.Error("audit append failed to marshal item",
			zap.String("decisionId", d.ID), zap.Error(err))
		return
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		r.logger.Warn("audit append write failed, queueing retry",
			zap.String("decisionId", d.ID), zap.Error(err))
		r.enqueueRetry(auditRetryItem{item: item, decisionID: d.ID, attempt: 1})
	}
}

func (r *AuditRepository) enqueueRetry(it auditRetryItem) {
	select {
	case r.retries <- it:
	default:
		r.logger.Error("audit retry buffer full, dropping row",
			zap.String("decisionId", it.decisionID))
	}
}

// retryLoop re-appends failed rows off the routing path. Each row gets a
// bounded number of attempts with a linearly growing delay.
func (r *AuditRepository) retryLoop() {
	for {
		select {
		case <-r.done:
			return
		case it := <-r.retries:
			timer := time.NewTimer(r.retryDelay * time.Duration(it.attempt))
			select {
			case <-r.done:
				timer.Stop()
				return
			case <-timer.C:
			}

			_, err := r.client.PutItem(context.Background(), &dynamodb.PutItemInput{
				TableName: aws.String(r.tableName),
				Item:      it.item,
			})
			if err == nil {
				r.logger.Info("audit row recovered on retry",
					zap.String("decisionId", it.decisionID),
					zap.Int("attempt", it.attempt))
				continue
			}
			if it.attempt < auditRetryAttempts {
				it.attempt++
				r.enqueueRetry(it)
				continue
			}
			r.logger.Error("audit row dropped after exhausting retries",
				zap.String("decisionId", it.decisionID), zap.Error(err))
		}
	}
}

// Recent returns up to limit decisions, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]*decision.Decision, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(auditPartition))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.Wrap(err, "Recent", "failed to build key condition")
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, apperrors.Infrastructure("DYNAMO_QUERY", "failed to query audit log").
			WithCause(err)
	}

	decisions := make([]*decision.Decision, 0, len(out.Items))
	for _, raw := range out.Items {
		var item ddbDecision
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, apperrors.Wrap(err, "Recent", "failed to unmarshal audit item")
		}
		var d decision.Decision
		if err := json.Unmarshal([]byte(item.Body), &d); err != nil {
			r.logger.Warn("skipping unreadable audit row",
				zap.String("decisionId", item.DecisionID), zap.Error(err))
			continue
		}
		decisions = append(decisions, &d)
	}
	return decisions, nil
}

package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"curator-backend/internal/domain/concept"
	apperrors "curator-backend/internal/errors"
)

// ddbArtifact is the artifact item layout.
type ddbArtifact struct {
	ID          string `dynamodbav:"ID"`
	Title       string `dynamodbav:"Title"`
	Content     string `dynamodbav:"Content"`
	ContentHash string `dynamodbav:"ContentHash"`
	Status      string `dynamodbav:"Status"`
	FolderID    string `dynamodbav:"FolderID,omitempty"`
	DecisionID  string `dynamodbav:"DecisionID,omitempty"`
	DuplicateOf string `dynamodbav:"DuplicateOf,omitempty"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

func toDDBArtifact(a *concept.Artifact) ddbArtifact {
	return ddbArtifact{
		ID:          a.ID,
		Title:       a.Title,
		Content:     a.Content,
		ContentHash: a.ContentHash,
		Status:      string(a.Status),
		FolderID:    a.FolderID,
		DecisionID:  a.DecisionID,
		DuplicateOf: a.DuplicateOf,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (item ddbArtifact) toArtifact() *concept.Artifact {
	createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return &concept.Artifact{
		ID:          item.ID,
		Title:       item.Title,
		Content:     item.Content,
		ContentHash: item.ContentHash,
		Status:      concept.Status(item.Status),
		FolderID:    item.FolderID,
		DecisionID:  item.DecisionID,
		DuplicateOf: item.DuplicateOf,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

// ArtifactRepository persists artifacts in DynamoDB.
type ArtifactRepository struct {
	client    *dynamodb.Client
	tableName string
}

// NewArtifactRepository creates a DynamoDB artifact repository.
func NewArtifactRepository(client *dynamodb.Client, tableName string) *ArtifactRepository {
	return &ArtifactRepository{client: client, tableName: tableName}
}

// Save upserts an artifact.
func (r *ArtifactRepository) Save(ctx context.Context, artifact *concept.Artifact) error {
	item, err := attributevalue.MarshalMap(toDDBArtifact(artifact))
	if err != nil {
		return apperrors.Wrap(err, "Save", "failed to marshal artifact item")
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return apperrors.Infrastructure("DYNAMO_PUT", "failed to save artifact").
			WithCause(err)
	}
	return nil
}

// FindByID loads one artifact.
func (r *ArtifactRepository) FindByID(ctx context.Context, id string) (*concept.Artifact, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, apperrors.Infrastructure("DYNAMO_GET", "failed to load artifact").
			WithCause(err)
	}
	if out.Item == nil {
		return nil, apperrors.NotFound("ARTIFACT_NOT_FOUND", "artifact not found").
			WithContext("artifactId", id)
	}

	var item ddbArtifact
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.Wrap(err, "FindByID", "failed to unmarshal artifact item")
	}
	return item.toArtifact(), nil
}

// UpdateRouting applies a routing state change in place.
func (r *ArtifactRepository) UpdateRouting(ctx context.Context, id string, update concept.RoutingUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	upd := expression.
		Set(expression.Name("Status"), expression.Value(string(update.Status))).
		Set(expression.Name("FolderID"), expression.Value(update.FolderID)).
		Set(expression.Name("DecisionID"), expression.Value(update.DecisionID)).
		Set(expression.Name("DuplicateOf"), expression.Value(update.DuplicateOf)).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().UTC().Format(time.RFC3339Nano)))
	cond := expression.AttributeExists(expression.Name("ID"))
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return apperrors.Wrap(err, "UpdateRouting", "failed to build update expression")
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return apperrors.NotFound("ARTIFACT_NOT_FOUND", "artifact not found").
				WithContext("artifactId", id)
		}
		return apperrors.Infrastructure("DYNAMO_UPDATE", "failed to update artifact routing").
			WithCause(err)
	}
	return nil
}

// Delete removes an artifact. Idempotent.
func (r *ArtifactRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return apperrors.Infrastructure("DYNAMO_DELETE", "failed to delete artifact").
			WithCause(err)
	}
	return nil
}

// Count returns the total number of artifacts.
func (r *ArtifactRepository) Count(ctx context.Context) (int, error) {
	total := 0
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Select:    types.SelectCount,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, apperrors.Infrastructure("DYNAMO_SCAN", "failed to count artifacts").
				WithCause(err)
		}
		total += int(page.Count)
	}
	return total, nil
}

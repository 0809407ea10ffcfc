package dynamodb

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
)

// pathIndexName is the GSI projecting folders by canonical path string.
const pathIndexName = "path-index"

// ddbFolder is the folder item layout.
type ddbFolder struct {
	ID          string      `dynamodbav:"ID"`
	Path        string      `dynamodbav:"Path"`
	Centroid    []float64   `dynamodbav:"Centroid,omitempty"`
	Exemplars   [][]float64 `dynamodbav:"Exemplars,omitempty"`
	MemberCount int         `dynamodbav:"MemberCount"`
	UpdatedAt   string      `dynamodbav:"UpdatedAt"`
	Version     int         `dynamodbav:"Version"`
}

func toDDBFolder(r *folder.Record) ddbFolder {
	return ddbFolder{
		ID:          r.ID,
		Path:        r.Path.String(),
		Centroid:    r.Centroid,
		Exemplars:   r.Exemplars,
		MemberCount: r.MemberCount,
		UpdatedAt:   r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Version:     r.Version,
	}
}

func (item ddbFolder) toRecord() (*folder.Record, error) {
	path, err := folder.FromString(item.Path)
	if err != nil {
		return nil, apperrors.Wrap(err, "toRecord", "stored folder path is invalid")
	}
	updatedAt, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return &folder.Record{
		ID:          item.ID,
		Path:        path,
		Centroid:    item.Centroid,
		Exemplars:   item.Exemplars,
		MemberCount: item.MemberCount,
		UpdatedAt:   updatedAt,
		Version:     item.Version,
	}, nil
}

// FolderRepository persists folder records in DynamoDB.
type FolderRepository struct {
	client    *dynamodb.Client
	tableName string
}

// NewFolderRepository creates a DynamoDB folder repository.
func NewFolderRepository(client *dynamodb.Client, tableName string) *FolderRepository {
	return &FolderRepository{client: client, tableName: tableName}
}

// Create writes a new folder, failing when the id already exists.
func (r *FolderRepository) Create(ctx context.Context, record *folder.Record) error {
	if _, err := r.FindByPath(ctx, record.Path); err == nil {
		return apperrors.Validation("FOLDER_EXISTS", "a folder already exists at this path").
			WithContext("path", record.Path.String())
	} else if !apperrors.IsNotFound(err) {
		return err
	}

	item, err := attributevalue.MarshalMap(toDDBFolder(record))
	if err != nil {
		return apperrors.Wrap(err, "Create", "failed to marshal folder item")
	}
	cond := expression.AttributeNotExists(expression.Name("ID"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return apperrors.Wrap(err, "Create", "failed to build condition")
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return apperrors.Validation("FOLDER_EXISTS", "a folder with this id already exists").
				WithContext("folderId", record.ID)
		}
		return apperrors.Infrastructure("DYNAMO_PUT", "failed to create folder").
			WithCause(err)
	}
	return nil
}

// FindByID loads one folder.
func (r *FolderRepository) FindByID(ctx context.Context, id string) (*folder.Record, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, apperrors.Infrastructure("DYNAMO_GET", "failed to load folder").
			WithCause(err)
	}
	if out.Item == nil {
		return nil, apperrors.NotFound("FOLDER_NOT_FOUND", "folder not found").
			WithContext("folderId", id)
	}

	var item ddbFolder
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.Wrap(err, "FindByID", "failed to unmarshal folder item")
	}
	return item.toRecord()
}

// FindByPath loads the folder at a canonical path via the path GSI.
func (r *FolderRepository) FindByPath(ctx context.Context, path folder.Path) (*folder.Record, error) {
	keyCond := expression.Key("Path").Equal(expression.Value(path.String()))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.Wrap(err, "FindByPath", "failed to build key condition")
	}

	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(pathIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, apperrors.Infrastructure("DYNAMO_QUERY", "failed to query folder by path").
			WithCause(err)
	}
	if len(out.Items) == 0 {
		return nil, apperrors.NotFound("FOLDER_NOT_FOUND", "folder not found").
			WithContext("path", path.String())
	}

	var item ddbFolder
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, apperrors.Wrap(err, "FindByPath", "failed to unmarshal folder item")
	}
	return item.toRecord()
}

// Update writes the record conditionally on the stored version being exactly
// one behind, mirroring the optimistic-lock contract.
func (r *FolderRepository) Update(ctx context.Context, record *folder.Record) error {
	item, err := attributevalue.MarshalMap(toDDBFolder(record))
	if err != nil {
		return apperrors.Wrap(err, "Update", "failed to marshal folder item")
	}
	cond := expression.Equal(expression.Name("Version"), expression.Value(record.Version-1))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return apperrors.Wrap(err, "Update", "failed to build condition")
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return apperrors.Concurrency("FOLDER_VERSION_CONFLICT", "folder was modified concurrently").
				WithContext("folderId", record.ID).
				WithContext("incomingVersion", record.Version)
		}
		return apperrors.Infrastructure("DYNAMO_PUT", "failed to update folder").
			WithCause(err)
	}
	return nil
}

// Rename moves the folder to a new path, rejecting collisions.
func (r *FolderRepository) Rename(ctx context.Context, id string, newPath folder.Path) error {
	if existing, err := r.FindByPath(ctx, newPath); err == nil && existing.ID != id {
		return apperrors.Validation("FOLDER_EXISTS", "a folder already exists at this path").
			WithContext("path", newPath.String())
	} else if err != nil && !apperrors.IsNotFound(err) {
		return err
	}

	record, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return r.Update(ctx, record.WithPath(newPath))
}

// ListChildren returns the immediate children of a path.
func (r *FolderRepository) ListChildren(ctx context.Context, path folder.Path) ([]*folder.Record, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*folder.Record
	for _, rec := range all {
		if parent, ok := rec.Path.Parent(); ok && parent.Equals(path) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// List returns every folder, ordered by path. The folder population is small
// by construction, so a scan is acceptable here.
func (r *FolderRepository) List(ctx context.Context) ([]*folder.Record, error) {
	var out []*folder.Record
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Infrastructure("DYNAMO_SCAN", "failed to scan folders").
				WithCause(err)
		}
		for _, raw := range page.Items {
			var item ddbFolder
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, apperrors.Wrap(err, "List", "failed to unmarshal folder item")
			}
			rec, err := item.toRecord()
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	sortByPath(out)
	return out, nil
}

// Count returns the total number of folders.
func (r *FolderRepository) Count(ctx context.Context) (int, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
		Select:    types.SelectCount,
	})
	if err != nil {
		return 0, apperrors.Infrastructure("DYNAMO_SCAN", "failed to count folders").
			WithCause(err)
	}
	return int(out.Count), nil
}

func sortByPath(records []*folder.Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Path.Compare(records[j].Path) < 0
	})
}

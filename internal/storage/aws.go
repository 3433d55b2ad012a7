package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/agreedhq/backoffice/internal/domain"
)

// AWSStore is the production ClientStore: records in a DynamoDB
// single-table layout, raw contract documents in S3.
type AWSStore struct {
	dynamoDB  *dynamodb.Client
	s3Client  *s3.Client
	tableName string
	bucket    string
	region    string
}

// clientItem is the DynamoDB item shape. The record itself is stored as
// a JSON blob so log appends stay a single-item read-modify-write.
type clientItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	AccessToken string `dynamodbav:"AccessToken,omitempty"`
	Data        string `dynamodbav:"Data"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

const clientSK = "RECORD"

// NewAWSStore creates a DynamoDB+S3 backed store.
func NewAWSStore(ctx context.Context, tableName, bucket, region, profile string) (*AWSStore, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &AWSStore{
		dynamoDB:  dynamodb.NewFromConfig(cfg),
		s3Client:  s3.NewFromConfig(cfg),
		tableName: tableName,
		bucket:    bucket,
		region:    region,
	}, nil
}

func clientPK(id string) string { return fmt.Sprintf("CLIENT#%s", id) }

func (s *AWSStore) putRecord(ctx context.Context, rec *domain.ClientRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	item, err := attributevalue.MarshalMap(clientItem{
		PK:          clientPK(rec.ID),
		SK:          clientSK,
		AccessToken: rec.AccessToken,
		Data:        string(data),
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *AWSStore) getRecord(ctx context.Context, id string) (*domain.ClientRecord, error) {
	out, err := s.dynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: clientPK(id)},
			"SK": &types.AttributeValueMemberS{Value: clientSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item clientItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	var rec domain.ClientRecord
	if err := json.Unmarshal([]byte(item.Data), &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &rec, nil
}

// Create persists a new record, refusing to overwrite an existing id.
func (s *AWSStore) Create(ctx context.Context, rec *domain.ClientRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	item, err := attributevalue.MarshalMap(clientItem{
		PK:          clientPK(rec.ID),
		SK:          clientSK,
		AccessToken: rec.AccessToken,
		Data:        string(data),
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("creating record %s: %w", rec.ID, err)
	}
	return nil
}

// FindAll scans the table for client records. The client base for one
// back office is small (hundreds), so a scan per daily batch is fine.
func (s *AWSStore) FindAll(ctx context.Context) ([]domain.ClientRecord, error) {
	var out []domain.ClientRecord
	var startKey map[string]types.AttributeValue

	for {
		resp, err := s.dynamoDB.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			FilterExpression:  aws.String("SK = :sk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sk": &types.AttributeValueMemberS{Value: clientSK},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning records: %w", err)
		}

		for _, raw := range resp.Items {
			var item clientItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			var rec domain.ClientRecord
			if err := json.Unmarshal([]byte(item.Data), &rec); err != nil {
				continue
			}
			out = append(out, rec)
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	return out, nil
}

// FindByID loads one record.
func (s *AWSStore) FindByID(ctx context.Context, id string) (*domain.ClientRecord, error) {
	return s.getRecord(ctx, id)
}

// FindByAccessToken scans for the record carrying the given lookup token.
func (s *AWSStore) FindByAccessToken(ctx context.Context, token string) (*domain.ClientRecord, error) {
	resp, err := s.dynamoDB.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("AccessToken = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scanning by token: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrNotFound
	}

	var item clientItem
	if err := attributevalue.UnmarshalMap(resp.Items[0], &item); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	var rec domain.ClientRecord
	if err := json.Unmarshal([]byte(item.Data), &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

// AppendNotification appends a reminder-email log entry.
func (s *AWSStore) AppendNotification(ctx context.Context, id string, entry domain.NotificationEntry) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.NotificationLog = append(rec.NotificationLog, entry)
	return s.putRecord(ctx, rec)
}

// AppendCallContent appends a voice-script log entry.
func (s *AWSStore) AppendCallContent(ctx context.Context, id string, entry domain.CallContentEntry) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.CallContentLog = append(rec.CallContentLog, entry)
	return s.putRecord(ctx, rec)
}

// SetVideoLink records a completed avatar video URL.
func (s *AWSStore) SetVideoLink(ctx context.Context, id, videoURL string) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	rec.VideoURL = videoURL
	return s.putRecord(ctx, rec)
}

// PutDocument archives a raw uploaded contract in S3.
func (s *AWSStore) PutDocument(ctx context.Context, key string, body []byte, contentType string) error {
	if s.bucket == "" {
		return fmt.Errorf("document bucket not configured")
	}
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("uploading document %s: %w", key, err)
	}
	return nil
}

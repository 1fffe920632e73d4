package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

// DynamoStore implements ClaimStore on DynamoDB. Every operation is a
// single-item call, so atomicity comes from the backend; the override guard
// is a condition expression instead of a transaction.
//
// DynamoStore intentionally does not implement Lister — the table has no
// secondary index and the pipeline never scans.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamo creates a DynamoDB-backed store. EndpointURL and static
// credentials are for local stacks; left empty, the default AWS chain is used.
func NewDynamo(ctx context.Context, cfg config.DynamoConfig) (*DynamoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, storageErr(eris.Wrap(err, "dynamo: load aws config"))
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	return &DynamoStore{client: client, table: cfg.Table}, nil
}

// claimItem is the DynamoDB shape of a claim record.
type claimItem struct {
	ClaimID           string  `dynamodbav:"claim_id"`
	CustomerID        string  `dynamodbav:"customer_id"`
	DamageDetected    bool    `dynamodbav:"damage_detected"`
	Confidence        float64 `dynamodbav:"confidence"`
	QualityScore      float64 `dynamodbav:"quality_score"`
	SystemStatus      string  `dynamodbav:"system_status"`
	EffectiveStatus   string  `dynamodbav:"effective_status"`
	UserOverride      bool    `dynamodbav:"user_override"`
	OverrideReason    *string `dynamodbav:"override_reason,omitempty"`
	OverrideTimestamp *string `dynamodbav:"override_timestamp,omitempty"`
	SubmittedAt       string  `dynamodbav:"submitted_at"`
	ProcessingTimeMS  int64   `dynamodbav:"processing_time_ms"`
	ModelVersion      string  `dynamodbav:"model_version"`
}

// Migrate verifies the table exists. Table provisioning is a deployment
// concern, not something the pipeline creates on the fly.
func (s *DynamoStore) Migrate(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	return storageErr(eris.Wrapf(err, "dynamo: describe table %s", s.table))
}

func (s *DynamoStore) Close() error {
	return nil
}

// Put writes the record as one item, replacing any prior item wholesale.
func (s *DynamoStore) Put(ctx context.Context, rec model.ClaimRecord) (*model.ClaimRecord, error) {
	item, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "dynamo: marshal claim %s", rec.ClaimID))
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "dynamo: put claim %s", rec.ClaimID))
	}
	return &rec, nil
}

func (s *DynamoStore) Get(ctx context.Context, claimID string) (*model.ClaimRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"claim_id": &types.AttributeValueMemberS{Value: claimID},
		},
	})
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "dynamo: get claim %s", claimID))
	}
	if out.Item == nil {
		return nil, claimerr.New(claimerr.CodeClaimNotFound, "no claim found with ID: "+claimID)
	}

	var item claimItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, storageErr(eris.Wrapf(err, "dynamo: unmarshal claim %s", claimID))
	}
	return fromItem(item)
}

// ApplyOverride conditionally rewrites the override fields. The condition
// expression makes the REJECTED → APPROVED transition race-safe without a
// version attribute.
func (s *DynamoStore) ApplyOverride(ctx context.Context, claimID, reason string) (*model.ClaimRecord, error) {
	if _, err := s.Get(ctx, claimID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"claim_id": &types.AttributeValueMemberS{Value: claimID},
		},
		UpdateExpression: aws.String(
			"SET effective_status = :status, user_override = :override, " +
				"override_timestamp = :ts, override_reason = :reason"),
		ConditionExpression: aws.String("effective_status = :rejected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(model.StatusApproved)},
			":override": &types.AttributeValueMemberBOOL{Value: true},
			":ts":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":reason":   &types.AttributeValueMemberS{Value: reason},
			":rejected": &types.AttributeValueMemberS{Value: string(model.StatusRejected)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return nil, claimerr.New(claimerr.CodeOverrideNotPermitted,
				"nothing to override: claim "+claimID+" is already approved")
		}
		return nil, storageErr(eris.Wrapf(err, "dynamo: override claim %s", claimID))
	}

	var item claimItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, storageErr(eris.Wrapf(err, "dynamo: unmarshal updated claim %s", claimID))
	}
	return fromItem(item)
}

func toItem(rec model.ClaimRecord) claimItem {
	item := claimItem{
		ClaimID:          rec.ClaimID,
		CustomerID:       rec.CustomerID,
		DamageDetected:   rec.DamageDetected,
		Confidence:       rec.Confidence,
		QualityScore:     rec.QualityScore,
		SystemStatus:     string(rec.SystemStatus),
		EffectiveStatus:  string(rec.EffectiveStatus),
		UserOverride:     rec.UserOverride,
		OverrideReason:   rec.OverrideReason,
		SubmittedAt:      rec.SubmittedAt.Format(time.RFC3339Nano),
		ProcessingTimeMS: rec.ProcessingTimeMS,
		ModelVersion:     rec.ModelVersion,
	}
	if rec.OverrideTimestamp != nil {
		ts := rec.OverrideTimestamp.Format(time.RFC3339Nano)
		item.OverrideTimestamp = &ts
	}
	return item
}

func fromItem(item claimItem) (*model.ClaimRecord, error) {
	systemStatus, err := model.ParseClaimStatus(item.SystemStatus)
	if err != nil {
		return nil, storageErr(err)
	}
	effectiveStatus, err := model.ParseClaimStatus(item.EffectiveStatus)
	if err != nil {
		return nil, storageErr(err)
	}
	submittedAt, err := time.Parse(time.RFC3339Nano, item.SubmittedAt)
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "dynamo: parse submitted_at for claim %s", item.ClaimID))
	}

	rec := &model.ClaimRecord{
		ClaimID:          item.ClaimID,
		CustomerID:       item.CustomerID,
		DamageDetected:   item.DamageDetected,
		Confidence:       item.Confidence,
		QualityScore:     item.QualityScore,
		SystemStatus:     systemStatus,
		EffectiveStatus:  effectiveStatus,
		UserOverride:     item.UserOverride,
		OverrideReason:   item.OverrideReason,
		SubmittedAt:      submittedAt,
		ProcessingTimeMS: item.ProcessingTimeMS,
		ModelVersion:     item.ModelVersion,
	}
	if item.OverrideTimestamp != nil {
		ts, err := time.Parse(time.RFC3339Nano, *item.OverrideTimestamp)
		if err != nil {
			return nil, storageErr(eris.Wrapf(err, "dynamo: parse override_timestamp for claim %s", item.ClaimID))
		}
		rec.OverrideTimestamp = &ts
	}
	return rec, nil
}

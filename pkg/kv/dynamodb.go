package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore implements Store on DynamoDB tables keyed by a string "id" hash key.
type DynamoStore struct {
	client *dynamodb.Client
}

// NewDynamoStore creates a DynamoDB-backed store. endpoint overrides the
// service URL (LocalStack, dynamodb-local); empty keeps the AWS default.
func NewDynamoStore(awsCfg aws.Config, endpoint string) *DynamoStore {
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &DynamoStore{client: client}
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		KeyAttribute: &types.AttributeValueMemberS{Value: key},
	}
}

func itemOf(key string, fields map[string]string) map[string]types.AttributeValue {
	item := keyOf(key)
	for k, v := range fields {
		if k == KeyAttribute {
			continue
		}
		item[k] = &types.AttributeValueMemberS{Value: v}
	}
	return item
}

// fromAttribute maps DynamoDB attribute values onto Go values. Only S
// attributes become strings; numbers surface as json.Number.
func fromAttribute(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return json.Number(v.Value)
	case *types.AttributeValueMemberBOOL:
		return v.Value
	case *types.AttributeValueMemberNULL:
		return nil
	default:
		return av
	}
}

// Get reads the item with a strongly consistent read
func (s *DynamoStore) Get(ctx context.Context, table, key string) (Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %s/%s failed: %w", table, key, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	rec := make(Record, len(out.Item))
	for k, av := range out.Item {
		if k == KeyAttribute {
			continue
		}
		rec[k] = fromAttribute(av)
	}
	return rec, nil
}

// Put replaces the item
func (s *DynamoStore) Put(ctx context.Context, table, key string, fields map[string]string) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      itemOf(key, fields),
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s/%s failed: %w", table, key, err)
	}
	return nil
}

// PutIf replaces the item guarded by a condition expression on cond.Field
func (s *DynamoStore) PutIf(ctx context.Context, table, key string, fields map[string]string, cond Condition) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     itemOf(key, fields),
		ConditionExpression:      aws.String("#f = :expected"),
		ExpressionAttributeNames: map[string]string{"#f": cond.Field},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: cond.Expected},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrConditionFailed
	}
	if err != nil {
		return fmt.Errorf("dynamodb conditional put %s/%s failed: %w", table, key, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing
func (s *DynamoStore) Close() error {
	return nil
}

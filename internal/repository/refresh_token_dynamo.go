package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rentora/rentora/internal/models"
	"github.com/sirupsen/logrus"
)

// DynamoDBAPI is the subset of the DynamoDB client the repositories use,
// satisfied by *dynamodb.Client and by fakes in tests.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRefreshTokenStore keeps refresh-token records in DynamoDB, keyed by
// the raw token value. A TTL attribute lets DynamoDB reap expired records,
// and FindByValue enforces expiry itself so an expired-but-unreaped record
// can never authenticate.
type DynamoRefreshTokenStore struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoRefreshTokenStore(client DynamoDBAPI, tableName string, logger *logrus.Logger) *DynamoRefreshTokenStore {
	return &DynamoRefreshTokenStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func refreshTokenPK(value string) string {
	return "REFRESH_TOKEN#" + value
}

func (r *DynamoRefreshTokenStore) Put(ctx context.Context, token models.RefreshToken) error {
	item := map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: refreshTokenPK(token.Value)},
		"SK":           &types.AttributeValueMemberS{Value: "METADATA"},
		"token_value":  &types.AttributeValueMemberS{Value: token.Value},
		"principal_id": &types.AttributeValueMemberS{Value: token.PrincipalID},
		"created_at":   &types.AttributeValueMemberS{Value: token.CreatedAt.Format(time.RFC3339)},
		"expires_at":   &types.AttributeValueMemberS{Value: token.ExpiresAt.Format(time.RFC3339)},
		"TTL":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", token.ExpiresAt.Unix())},
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})

	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrDuplicateToken
		}
		r.logger.WithError(err).Error("Failed to store refresh token in DynamoDB")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

func (r *DynamoRefreshTokenStore) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: refreshTokenPK(value)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if result.Item == nil {
		return nil, ErrTokenNotFound
	}

	var token models.RefreshToken
	if err := attributevalue.UnmarshalMap(result.Item, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	// DynamoDB TTL reaping lags; an expired record must not authenticate.
	if !token.ExpiresAt.After(time.Now()) {
		return nil, ErrTokenNotFound
	}

	return &token, nil
}

func (r *DynamoRefreshTokenStore) DeleteByValue(ctx context.Context, value string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: refreshTokenPK(value)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	return nil
}

func (r *DynamoRefreshTokenStore) DeleteAllForPrincipal(ctx context.Context, principalID string) error {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("begins_with(PK, :pk_prefix) AND principal_id = :principal_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk_prefix":    &types.AttributeValueMemberS{Value: "REFRESH_TOKEN#"},
			":principal_id": &types.AttributeValueMemberS{Value: principalID},
		},
	}

	// Scan pages are cut at 1MB before the filter runs, so a match can sit
	// on any page. Revocation must walk every page; a partial sweep would
	// leave live sessions behind.
	for {
		result, err := r.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to scan refresh tokens for principal: %w", err)
		}

		var tokens []models.RefreshToken
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &tokens); err != nil {
			return fmt.Errorf("failed to unmarshal refresh tokens: %w", err)
		}

		for _, token := range tokens {
			if err := r.DeleteByValue(ctx, token.Value); err != nil {
				r.logger.WithError(err).WithField("principal_id", principalID).Error("Failed to delete refresh token during bulk revocation")
				return err
			}
		}

		if len(result.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

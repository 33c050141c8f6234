package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "USER#"
	skToken  = "TOKEN"
)

// DynamoStore implements CredentialStore using AWS DynamoDB.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ CredentialStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// userPK returns the partition key for a user.
func userPK(uid string) string {
	return pkPrefix + uid
}

// GetToken retrieves the stored token for a user. Returns "", nil if none.
func (s *DynamoStore) GetToken(ctx context.Context, uid string) (string, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(uid)},
			"SK": &types.AttributeValueMemberS{Value: skToken},
		},
	})
	if err != nil {
		return "", fmt.Errorf("GetItem PK=%s: %w", userPK(uid), err)
	}
	if result.Item == nil {
		return "", nil
	}

	var rec credentialRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return "", fmt.Errorf("unmarshal credential: %w", err)
	}
	return rec.Token, nil
}

// SaveToken creates or replaces the stored token for a user.
func (s *DynamoStore) SaveToken(ctx context.Context, uid, token string) error {
	rec := credentialRecord{
		Token:     token,
		UpdatedAt: time.Now().Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: userPK(uid)}
	item["SK"] = &types.AttributeValueMemberS{Value: skToken}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s: %w", userPK(uid), err)
	}

	log.Debug().Str("uid", uid).Msg("Credential stored")
	return nil
}

// HasToken reports whether the user has a stored token.
func (s *DynamoStore) HasToken(ctx context.Context, uid string) (bool, error) {
	token, err := s.GetToken(ctx, uid)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// DeleteToken removes the stored token for a user.
func (s *DynamoStore) DeleteToken(ctx context.Context, uid string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(uid)},
			"SK": &types.AttributeValueMemberS{Value: skToken},
		},
	})
	if err != nil {
		return fmt.Errorf("DeleteItem PK=%s: %w", userPK(uid), err)
	}
	return nil
}

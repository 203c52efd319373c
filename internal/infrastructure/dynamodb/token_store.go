package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
)

// API is the subset of *dynamodb.Client the token store calls.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Table requirements: PK provider (string).
type tokenItem struct {
	Provider     string `dynamodbav:"provider"`
	AccessToken  string `dynamodbav:"access_token"`
	RefreshToken string `dynamodbav:"refresh_token"`
	UserID       int64  `dynamodbav:"user_id"`
	ExpiresIn    int64  `dynamodbav:"expires_in"`
	CreatedAt    string `dynamodbav:"created_at"`
	TokenType    string `dynamodbav:"token_type,omitempty"`
	Scope        string `dynamodbav:"scope,omitempty"`
	PublicKey    string `dynamodbav:"public_key,omitempty"`
	UpdatedAt    string `dynamodbav:"updated_at"`
}

type TokenStore struct {
	ddb       API
	tableName string
	provider  string
}

func NewTokenStore(ddb API, tableName, provider string) *TokenStore {
	return &TokenStore{ddb: ddb, tableName: tableName, provider: provider}
}

func (s *TokenStore) Get(ctx context.Context) (*oauth.Token, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"provider": &types.AttributeValueMemberS{Value: s.provider},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get oauth token: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, domainErrors.ErrTokenNotFound
	}

	var it tokenItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return fromTokenItem(it)
}

func (s *TokenStore) Set(ctx context.Context, t *oauth.Token) error {
	av, err := attributevalue.MarshalMap(toTokenItem(s.provider, t, time.Now()))
	if err != nil {
		return fmt.Errorf("encode oauth token: %w", err)
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put oauth token: %w", err)
	}
	return nil
}

func toTokenItem(provider string, t *oauth.Token, now time.Time) tokenItem {
	return tokenItem{
		Provider:     provider,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		UserID:       t.UserID,
		ExpiresIn:    t.ExpiresIn,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		TokenType:    t.TokenType,
		Scope:        t.Scope,
		PublicKey:    t.PublicKey,
		UpdatedAt:    now.UTC().Format(time.RFC3339Nano),
	}
}

func fromTokenItem(it tokenItem) (*oauth.Token, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &oauth.Token{
		AccessToken:  it.AccessToken,
		RefreshToken: it.RefreshToken,
		UserID:       it.UserID,
		ExpiresIn:    it.ExpiresIn,
		CreatedAt:    createdAt,
		TokenType:    it.TokenType,
		Scope:        it.Scope,
		PublicKey:    it.PublicKey,
	}, nil
}

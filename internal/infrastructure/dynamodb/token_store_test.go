package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	items  map[string]map[string]types.AttributeValue
	getErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	key := in.Key["provider"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[*in.TableName+"/"+key]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := in.Item["provider"].(*types.AttributeValueMemberS).Value
	f.items[*in.TableName+"/"+key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestTokenStore_GetMissing(t *testing.T) {
	store := NewTokenStore(newFakeDynamo(), "oauth_tokens", "mercadopago")

	_, err := store.Get(context.Background())

	assert.ErrorIs(t, err, domainErrors.ErrTokenNotFound)
}

func TestTokenStore_SetThenGet(t *testing.T) {
	store := NewTokenStore(newFakeDynamo(), "oauth_tokens", "mercadopago")
	tok := &oauth.Token{
		AccessToken:  "APP_USR-access",
		RefreshToken: "TG-refresh",
		UserID:       123456,
		ExpiresIn:    15552000,
		CreatedAt:    time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC),
		TokenType:    "Bearer",
	}

	require.NoError(t, store.Set(context.Background(), tok))
	got, err := store.Get(context.Background())

	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestTokenStore_GetError(t *testing.T) {
	fake := newFakeDynamo()
	fake.getErr = errors.New("throttled")
	store := NewTokenStore(fake, "oauth_tokens", "mercadopago")

	_, err := store.Get(context.Background())

	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, domainErrors.ErrTokenNotFound)
}

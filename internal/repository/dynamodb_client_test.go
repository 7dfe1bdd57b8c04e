package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"jobboard-agent/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mustNewDynamoStore(t *testing.T, db *fakeDynamo) *DynamoStore {
	t.Helper()
	c, err := NewDynamoStore(db, "test-table")
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func sampleSession() domain.Session {
	return domain.Session{
		ConversationID: "abc",
		State:          domain.StateAwaitingAnswer,
		Turns: []domain.Turn{
			{Role: domain.TurnUser, Text: "iOS engineer", At: fixedNow},
			{Role: domain.TurnBot, Text: "Where would you like to work?", At: fixedNow},
		},
		PendingField:  domain.FieldLocation,
		Transcript:    "iOS engineer",
		Intent:        &domain.Intent{Role: "iOS engineer", SalaryMin: &domain.Salary{Amount: 1, Currency: "USD"}},
		MissingFields: []domain.Field{domain.FieldLocation, domain.FieldWorkType},
		AskedFields:   []domain.Field{domain.FieldLocation},
		RoleAttempts:  0,
		Version:       3,
		UpdatedAt:     fixedNow,
	}
}

func TestNewDynamoStore_Validates(t *testing.T) {
	_, err := NewDynamoStore(nil, "t")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")

	_, err = NewDynamoStore(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "table name")
}

func TestDynamoStore_RoundTrip(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamoStore(t, db)

	s := sampleSession()
	require.NoError(t, c.Put(context.Background(), s, 2))

	in := db.lastPutInput
	require.NotNil(t, in)
	require.Equal(t, "test-table", aws.ToString(in.TableName))
	require.Equal(t, "#v = :expected AND #st <> :terminated", aws.ToString(in.ConditionExpression))
	require.Equal(t, &types.AttributeValueMemberN{Value: "2"}, in.ExpressionAttributeValues[":expected"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "CONV#abc"}, in.Item["PK"])
	require.Equal(t, &types.AttributeValueMemberS{Value: skSession}, in.Item["SK"])

	ttl, err := intAttr(in.Item, "ttl")
	require.NoError(t, err)
	require.Equal(t, fixedNow.Add(sessionTTL).Unix(), int64(ttl))

	db.getOut = &dynamodb.GetItemOutput{Item: in.Item}
	got, found, err := c.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, s, got)
	require.True(t, aws.ToBool(db.lastGetInput.ConsistentRead))
}

func TestDynamoStore_PutNewSessionRequiresAbsence(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamoStore(t, db)

	s := domain.NewSession("new", fixedNow)
	s.Version = 1
	require.NoError(t, c.Put(context.Background(), s, 0))
	require.Equal(t, "attribute_not_exists(PK)", aws.ToString(db.lastPutInput.ConditionExpression))
	_, hasIntent := db.lastPutInput.Item["intent"]
	require.False(t, hasIntent)
}

func TestDynamoStore_PutConditionFailedIsConflict(t *testing.T) {
	db := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{Message: aws.String("nope")}}
	c := mustNewDynamoStore(t, db)

	err := c.Put(context.Background(), sampleSession(), 2)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestDynamoStore_PutOtherError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("throttled")}
	c := mustNewDynamoStore(t, db)

	err := c.Put(context.Background(), sampleSession(), 2)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrVersionConflict)
	require.Contains(t, err.Error(), "throttled")
}

func TestDynamoStore_GetMissing(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	c := mustNewDynamoStore(t, db)

	_, found, err := c.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDynamoStore_GetError(t *testing.T) {
	db := &fakeDynamo{getErr: errors.New("boom")}
	c := mustNewDynamoStore(t, db)

	_, _, err := c.Get(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Get")
}

func TestDynamoStore_GetMalformedItem(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: "abc"},
		"state":          &types.AttributeValueMemberS{Value: "COLLECTING"},
		"version":        &types.AttributeValueMemberS{Value: "bad"},
	}}}
	c := mustNewDynamoStore(t, db)

	_, _, err := c.Get(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}

func TestDynamoStore_ClearWritesTombstone(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewDynamoStore(t, db)

	require.NoError(t, c.Clear(context.Background(), "abc"))
	in := db.lastPutInput
	require.Nil(t, in.ConditionExpression)
	require.Equal(t, &types.AttributeValueMemberS{Value: string(domain.StateTerminated)}, in.Item["state"])

	ttl, err := intAttr(in.Item, "ttl")
	require.NoError(t, err)
	require.Equal(t, fixedNow.Add(tombstoneTTL).Unix(), int64(ttl))
}

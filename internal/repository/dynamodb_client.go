package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"jobboard-agent/internal/domain"
)

const skSession = "SESSION#"

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps one item per conversation in a DynamoDB table keyed by
// PK/SK, expiring through the table's ttl attribute.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

func sessionKey(conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
		"SK": &types.AttributeValueMemberS{Value: skSession},
	}
}

func (c *DynamoStore) Get(ctx context.Context, conversationID string) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            sessionKey(conversationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}
	s, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get decode: %w", err)
	}
	return s, true, nil
}

// Put replaces the stored session if its version still equals
// expectedVersion and it has not been reset.
func (c *DynamoStore) Put(ctx context.Context, s domain.Session, expectedVersion int64) error {
	item, err := sessionItem(s, c.now().Add(sessionTTL).Unix())
	if err != nil {
		return fmt.Errorf("repository: Put encode: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}
	if expectedVersion == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("#v = :expected AND #st <> :terminated")
		in.ExpressionAttributeNames = map[string]string{"#v": "version", "#st": "state"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected":   &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
			":terminated": &types.AttributeValueMemberS{Value: string(domain.StateTerminated)},
		}
	}

	if _, err := c.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVersionConflict
		}
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// Clear overwrites the session with a short-lived TERMINATED tombstone.
func (c *DynamoStore) Clear(ctx context.Context, conversationID string) error {
	now := c.now()
	item, err := sessionItem(domain.Tombstone(conversationID, now), now.Add(tombstoneTTL).Unix())
	if err != nil {
		return fmt.Errorf("repository: Clear encode: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Clear: %w", err)
	}
	return nil
}

func sessionItem(s domain.Session, ttl int64) (map[string]types.AttributeValue, error) {
	turns, err := json.Marshal(s.Turns)
	if err != nil {
		return nil, err
	}
	missing, err := json.Marshal(s.MissingFields)
	if err != nil {
		return nil, err
	}
	asked, err := json.Marshal(s.AskedFields)
	if err != nil {
		return nil, err
	}

	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(s.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: skSession},
		"conversationId": &types.AttributeValueMemberS{Value: s.ConversationID},
		"state":          &types.AttributeValueMemberS{Value: string(s.State)},
		"pendingField":   &types.AttributeValueMemberS{Value: string(s.PendingField)},
		"transcript":     &types.AttributeValueMemberS{Value: s.Transcript},
		"turns":          &types.AttributeValueMemberS{Value: string(turns)},
		"missingFields":  &types.AttributeValueMemberS{Value: string(missing)},
		"askedFields":    &types.AttributeValueMemberS{Value: string(asked)},
		"roleAttempts":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.RoleAttempts)},
		"version":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", s.Version)},
		"updatedAt":      &types.AttributeValueMemberS{Value: s.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttl)},
	}
	if s.Intent != nil {
		in, err := json.Marshal(s.Intent)
		if err != nil {
			return nil, err
		}
		item["intent"] = &types.AttributeValueMemberS{Value: string(in)}
	}
	return item, nil
}

func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	id, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.Session{}, err
	}
	state, err := strAttr(item, "state")
	if err != nil {
		return domain.Session{}, err
	}
	version, err := intAttr(item, "version")
	if err != nil {
		return domain.Session{}, err
	}
	pending, _ := strAttr(item, "pendingField") // allow empty
	transcript, _ := strAttr(item, "transcript")
	attempts, _ := intAttr(item, "roleAttempts")

	s := domain.Session{
		ConversationID: id,
		State:          domain.State(state),
		PendingField:   domain.Field(pending),
		Transcript:     transcript,
		RoleAttempts:   attempts,
		Version:        int64(version),
	}
	if ts, err := strAttr(item, "updatedAt"); err == nil {
		s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if err := jsonAttr(item, "turns", &s.Turns); err != nil {
		return domain.Session{}, err
	}
	if err := jsonAttr(item, "missingFields", &s.MissingFields); err != nil {
		return domain.Session{}, err
	}
	if err := jsonAttr(item, "askedFields", &s.AskedFields); err != nil {
		return domain.Session{}, err
	}
	if _, ok := item["intent"]; ok {
		var in domain.Intent
		if err := jsonAttr(item, "intent", &in); err != nil {
			return domain.Session{}, err
		}
		s.Intent = &in
	}
	return s, nil
}

// jsonAttr decodes a JSON-encoded string attribute. A missing attribute
// leaves out untouched.
func jsonAttr(item map[string]types.AttributeValue, key string, out any) error {
	if _, ok := item[key]; !ok {
		return nil
	}
	raw, err := strAttr(item, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("repository: decode attribute %q: %w", key, err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

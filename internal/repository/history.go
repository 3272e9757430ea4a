package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"trainer-agent/internal/domain"
)

// timestampLayout is a fixed-width RFC3339 variant so the string sort key
// orders lexicographically. time.RFC3339Nano trims trailing zeros and would
// break range queries.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// historyAPI is the minimal DynamoDB surface required by HistoryStore.
// Defined here for testability.
type historyAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// HistoryStore is the durable per-user append log of conversation turns,
// keyed by (lineId, timestamp).
type HistoryStore struct {
	api       historyAPI
	tableName string
	loc       *time.Location

	now func() time.Time
}

// NewHistoryStore creates a HistoryStore writing timestamps in the given
// reference timezone.
func NewHistoryStore(api historyAPI, tableName string, loc *time.Location) (*HistoryStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if loc == nil {
		return nil, errors.New("repository: reference timezone must not be nil")
	}
	return &HistoryStore{api: api, tableName: tableName, loc: loc, now: time.Now}, nil
}

// Append writes one new turn, assigning the timestamp at write time in the
// reference timezone. Turns are append-only and never mutated.
func (s *HistoryStore) Append(ctx context.Context, lineID, userMessage, assistantMessage string) (domain.Turn, error) {
	turn := domain.Turn{
		LineID:           lineID,
		Timestamp:        s.now().In(s.loc),
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      turnItem(turn),
	})
	if err != nil {
		return domain.Turn{}, fmt.Errorf("repository: Append: %w", err)
	}
	return turn, nil
}

// Recent returns up to limit most recent turns, re-ordered ascending by
// timestamp. A user with no history yields an empty slice, not an error.
func (s *HistoryStore) Recent(ctx context.Context, lineID string, limit int) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("lineId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: lineID},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: Recent query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Recent unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// CountSince counts turns whose timestamp falls in the half-open window
// [start, end). DynamoDB BETWEEN is inclusive, so the upper bound is nudged
// one nanosecond below end.
func (s *HistoryStore) CountSince(ctx context.Context, lineID string, start, end time.Time) (int, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("lineId = :id AND #ts BETWEEN :start AND :end"),
		ExpressionAttributeNames: map[string]string{
			"#ts": "timestamp",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":    &types.AttributeValueMemberS{Value: lineID},
			":start": &types.AttributeValueMemberS{Value: start.In(s.loc).Format(timestampLayout)},
			":end":   &types.AttributeValueMemberS{Value: end.In(s.loc).Add(-time.Nanosecond).Format(timestampLayout)},
		},
		Select: types.SelectCount,
	}

	total := 0
	for {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("repository: CountSince query: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return total, nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"lineId":            &types.AttributeValueMemberS{Value: turn.LineID},
		"timestamp":         &types.AttributeValueMemberS{Value: turn.Timestamp.Format(timestampLayout)},
		"user_message":      &types.AttributeValueMemberS{Value: turn.UserMessage},
		"assistant_message": &types.AttributeValueMemberS{Value: turn.AssistantMessage},
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	lineID, err := strAttr(item, "lineId")
	if err != nil {
		return domain.Turn{}, err
	}
	raw, err := strAttr(item, "timestamp")
	if err != nil {
		return domain.Turn{}, err
	}
	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("repository: parse timestamp %q: %w", raw, err)
	}
	userMessage, err := strAttr(item, "user_message")
	if err != nil {
		return domain.Turn{}, err
	}
	assistantMessage, _ := strAttr(item, "assistant_message") // absent when the turn failed before a reply

	return domain.Turn{
		LineID:           lineID,
		Timestamp:        ts,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}, nil
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

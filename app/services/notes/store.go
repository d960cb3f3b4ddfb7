// Package notes keeps short text notes per owner in a DynamoDB table.
//
// Items live under PK "OWNER#<phone>" with SK "NOTE#<created>#<id>", so a
// Query on the partition returns an owner's notes in creation order.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/container"
)

// Token is the container token of the *Store.
var Token = container.TypeOf[*Store]()

// ErrEmptyNote is returned when saving blank text.
var ErrEmptyNote = errors.New("notes: empty note")

// API is the part of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Note is one saved note.
type Note struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type ddbNote struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	NoteID    string `dynamodbav:"NoteID"`
	Owner     string `dynamodbav:"Owner"`
	Text      string `dynamodbav:"Text"`
	CreatedAt string `dynamodbav:"CreatedAt"`
}

// Store reads and writes notes.
type Store struct {
	api    API
	table  string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a store over table.
func NewStore(api API, table string, logger *zap.Logger) (*Store, error) {
	if table == "" {
		return nil, errors.New("notes: table name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, table: table, logger: logger, now: time.Now}, nil
}

func ownerKey(owner string) string { return "OWNER#" + owner }

// Save stores text for owner and returns the new note.
func (s *Store) Save(ctx context.Context, owner, text string) (Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Note{}, ErrEmptyNote
	}
	n := Note{
		ID:        uuid.NewString(),
		Owner:     owner,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	created := n.CreatedAt.Format(time.RFC3339Nano)
	item, err := attributevalue.MarshalMap(ddbNote{
		PK:        ownerKey(owner),
		SK:        "NOTE#" + created + "#" + n.ID,
		NoteID:    n.ID,
		Owner:     owner,
		Text:      text,
		CreatedAt: created,
	})
	if err != nil {
		return Note{}, fmt.Errorf("marshal note: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return Note{}, fmt.Errorf("save note: %w", err)
	}
	s.logger.Info("note saved", zap.String("note_id", n.ID))
	return n, nil
}

// Recent returns up to limit of owner's notes, newest first.
func (s *Store) Recent(ctx context.Context, owner string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: ownerKey(owner)},
			":sk": &types.AttributeValueMemberS{Value: "NOTE#"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}

	var rows []ddbNote
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal notes: %w", err)
	}
	notes := make([]Note, 0, len(rows))
	for _, r := range rows {
		created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			s.logger.Warn("skipping note with bad timestamp", zap.String("note_id", r.NoteID), zap.Error(err))
			continue
		}
		notes = append(notes, Note{ID: r.NoteID, Owner: r.Owner, Text: r.Text, CreatedAt: created})
	}
	return notes, nil
}

// HealthCheck verifies the table exists and is active.
func (s *Store) HealthCheck(ctx context.Context) error {
	out, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return err
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		status := "unknown"
		if out.Table != nil {
			status = string(out.Table.TableStatus)
		}
		return fmt.Errorf("table %s is %s", s.table, status)
	}
	return nil
}

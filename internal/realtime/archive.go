package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/frahmantamala/dental-credit/internal/core/events"
)

// fixed width so updated_at strings compare in time order
const archiveTimeLayout = "2006-01-02T15:04:05.000000000Z"

// DynamoAPI is the subset of the DynamoDB client the archive uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type archiveItem struct {
	ID        string `dynamodbav:"id"`
	Table     string `dynamodbav:"table_name"`
	Type      string `dynamodbav:"change_type"`
	RecordID  int64  `dynamodbav:"record_id"`
	Record    string `dynamodbav:"record,omitempty"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// DynamoArchive stores change events in a DynamoDB table keyed by event id.
//
// Table requirements:
//   - PK: id (string)
type DynamoArchive struct {
	ddb       DynamoAPI
	tableName string
	logger    *slog.Logger
}

func NewDynamoArchive(ddb DynamoAPI, tableName string, logger *slog.Logger) *DynamoArchive {
	return &DynamoArchive{ddb: ddb, tableName: tableName, logger: logger}
}

// NewDynamoClient builds a client for region. A non-empty endpoint targets a local DynamoDB with static credentials.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (a *DynamoArchive) Store(ctx context.Context, ev ChangeEvent) error {
	it := archiveItem{
		ID:        ev.ID,
		Table:     ev.Table,
		Type:      ev.Type,
		RecordID:  ev.RecordID,
		UpdatedAt: ev.UpdatedAt.UTC().Format(archiveTimeLayout),
	}
	if len(ev.Record) > 0 {
		raw, err := json.Marshal(ev.Record)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		it.Record = string(raw)
	}

	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return err
	}
	_, err = a.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(a.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	})
	var dup *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &dup) {
		return err
	}
	return nil
}

// Handle is the event bus handler that archives every record change.
func (a *DynamoArchive) Handle(ctx context.Context, e events.Event) error {
	ev, ok := FromEvent(e)
	if !ok {
		return nil
	}
	if err := a.Store(ctx, ev); err != nil {
		a.logger.Error("failed to archive change event", "event_id", ev.ID, "table", ev.Table, "error", err)
		return err
	}
	return nil
}

// Since lists archived events with updated_at at or after since, oldest first.
func (a *DynamoArchive) Since(ctx context.Context, since time.Time) ([]ChangeEvent, error) {
	var (
		out   []ChangeEvent
		start map[string]types.AttributeValue
	)
	for {
		res, err := a.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(a.tableName),
			FilterExpression: aws.String("updated_at >= :since"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":since": &types.AttributeValueMemberS{Value: since.UTC().Format(archiveTimeLayout)},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range res.Items {
			var it archiveItem
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, err
			}
			ev, err := fromArchiveItem(it)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		start = res.LastEvaluatedKey
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func fromArchiveItem(it archiveItem) (ChangeEvent, error) {
	at, err := time.Parse(archiveTimeLayout, it.UpdatedAt)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("archived event %s: %w", it.ID, err)
	}
	ev := ChangeEvent{
		ID:        it.ID,
		Table:     it.Table,
		Type:      it.Type,
		RecordID:  it.RecordID,
		UpdatedAt: at,
	}
	if it.Record != "" {
		if err := json.Unmarshal([]byte(it.Record), &ev.Record); err != nil {
			return ChangeEvent{}, fmt.Errorf("archived event %s: %w", it.ID, err)
		}
	}
	return ev, nil
}

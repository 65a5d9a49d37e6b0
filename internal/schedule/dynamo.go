package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// dynamoSlot is the item shape: partition key "doctor#date", sort key
// start time, and a seq attribute carrying insertion order.
type dynamoSlot struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	ID         string `dynamodbav:"id"`
	EndTime    string `dynamodbav:"end_time"`
	Fee        int64  `dynamodbav:"fee"`
	Booked     bool   `dynamodbav:"booked"`
	HeldBy     string `dynamodbav:"held_by"`
	ReservedAt int64  `dynamodbav:"reserved_at,omitempty"`
	Seq        int64  `dynamodbav:"seq"`
}

func (d dynamoSlot) slot() Slot {
	s := Slot{
		ID:        d.ID,
		StartTime: d.SK,
		EndTime:   d.EndTime,
		Fee:       d.Fee,
		Booked:    d.Booked,
		HeldBy:    d.HeldBy,
	}
	if d.ReservedAt > 0 {
		t := time.UnixMilli(d.ReservedAt).UTC()
		s.ReservedAt = &t
	}
	return s
}

// DynamoBackend keeps one item per slot. Reserve and release are
// UpdateItem calls guarded by a ConditionExpression.
type DynamoBackend struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
	seq       atomic.Int64
}

// NewDynamoBackend builds a backend on the given table.
func NewDynamoBackend(client dynamoAPI, tableName string) *DynamoBackend {
	if client == nil {
		panic("schedule: dynamodb client cannot be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		panic("schedule: table name cannot be empty")
	}
	return &DynamoBackend{client: client, tableName: tableName, now: time.Now}
}

func (d *DynamoBackend) Name() string { return "dynamodb" }

func partitionKey(doctorID, dateKey string) string {
	return doctorID + "#" + dateKey
}

func (d *DynamoBackend) itemKey(ref Ref) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: partitionKey(ref.DoctorID, ref.DateKey)},
		"sk": &types.AttributeValueMemberS{Value: ref.StartTime},
	}
}

// nextSeq orders appends by wall clock, bumped to stay strictly increasing
// within this process.
func (d *DynamoBackend) nextSeq() int64 {
	now := d.now().UnixNano()
	for {
		last := d.seq.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if d.seq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (d *DynamoBackend) loadDay(ctx context.Context, doctorID, dateKey string) ([]dynamoSlot, error) {
	var (
		items []dynamoSlot
		start map[string]types.AttributeValue
	)
	for {
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.tableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: partitionKey(doctorID, dateKey)},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("schedule: query slots: %w", err)
		}
		var page []dynamoSlot
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("schedule: decode slots: %w", err)
		}
		items = append(items, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	return items, nil
}

func (d *DynamoBackend) List(ctx context.Context, doctorID, dateKey string) ([]Slot, error) {
	items, err := d.loadDay(ctx, doctorID, dateKey)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, len(items))
	for i, item := range items {
		slots[i] = item.slot()
	}
	return slots, nil
}

func (d *DynamoBackend) Append(ctx context.Context, doctorID, dateKey string, in NewSlot) (Slot, error) {
	item := dynamoSlot{
		PK:      partitionKey(doctorID, dateKey),
		SK:      in.StartTime,
		ID:      uuid.NewString(),
		EndTime: in.EndTime,
		Fee:     in.Fee,
		Seq:     d.nextSeq(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: marshal slot: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return Slot{}, ErrDuplicateStart
		}
		return Slot{}, fmt.Errorf("schedule: put slot: %w", err)
	}
	return item.slot(), nil
}

func (d *DynamoBackend) RemoveAt(ctx context.Context, doctorID, dateKey string, index int) (Slot, error) {
	items, err := d.loadDay(ctx, doctorID, dateKey)
	if err != nil {
		return Slot{}, err
	}
	if index < 0 || index >= len(items) {
		return Slot{}, ErrSlotNotFound
	}
	return d.deleteItem(ctx, doctorID, dateKey, items[index])
}

func (d *DynamoBackend) RemoveByID(ctx context.Context, doctorID, dateKey, slotID string) (Slot, error) {
	items, err := d.loadDay(ctx, doctorID, dateKey)
	if err != nil {
		return Slot{}, err
	}
	for _, item := range items {
		if item.ID == slotID {
			return d.deleteItem(ctx, doctorID, dateKey, item)
		}
	}
	return Slot{}, ErrSlotNotFound
}

// deleteItem removes the item only if it still carries the id that was
// listed, so a concurrent remove-and-re-add at the same start survives.
func (d *DynamoBackend) deleteItem(ctx context.Context, doctorID, dateKey string, item dynamoSlot) (Slot, error) {
	out, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.tableName),
		Key:                      d.itemKey(Ref{DoctorID: doctorID, DateKey: dateKey, StartTime: item.SK}),
		ConditionExpression:      aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: item.ID},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionFailed(err) {
			return Slot{}, ErrSlotNotFound
		}
		return Slot{}, fmt.Errorf("schedule: delete slot: %w", err)
	}
	if len(out.Attributes) == 0 {
		return item.slot(), nil
	}
	var removed dynamoSlot
	if err := attributevalue.UnmarshalMap(out.Attributes, &removed); err != nil {
		return Slot{}, fmt.Errorf("schedule: decode removed slot: %w", err)
	}
	return removed.slot(), nil
}

func (d *DynamoBackend) Get(ctx context.Context, ref Ref) (Slot, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.itemKey(ref),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Slot{}, fmt.Errorf("schedule: get slot: %w", err)
	}
	if out.Item == nil {
		return Slot{}, ErrSlotNotFound
	}
	var item dynamoSlot
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Slot{}, fmt.Errorf("schedule: decode slot: %w", err)
	}
	return item.slot(), nil
}

func (d *DynamoBackend) Reserve(ctx context.Context, ref Ref, holder string) (Slot, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.itemKey(ref),
		UpdateExpression:    aws.String("SET #booked = :t, #held = :h, #reserved = if_not_exists(#reserved, :now)"),
		ConditionExpression: aws.String("attribute_exists(sk) AND (#booked = :f OR #held = :h)"),
		ExpressionAttributeNames: map[string]string{
			"#booked":   "booked",
			"#held":     "held_by",
			"#reserved": "reserved_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
			":h":   &types.AttributeValueMemberS{Value: holder},
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", d.now().UTC().UnixMilli())},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if !isConditionFailed(err) {
			return Slot{}, fmt.Errorf("schedule: reserve slot: %w", err)
		}
		if _, getErr := d.Get(ctx, ref); getErr != nil {
			return Slot{}, getErr
		}
		return Slot{}, ErrSlotTaken
	}
	var item dynamoSlot
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return Slot{}, fmt.Errorf("schedule: decode reserved slot: %w", err)
	}
	return item.slot(), nil
}

func (d *DynamoBackend) Release(ctx context.Context, ref Ref, holder string) (bool, error) {
	condition := "attribute_exists(sk) AND #booked = :t"
	values := map[string]types.AttributeValue{
		":t":     &types.AttributeValueMemberBOOL{Value: true},
		":f":     &types.AttributeValueMemberBOOL{Value: false},
		":empty": &types.AttributeValueMemberS{Value: ""},
	}
	if holder != "" {
		condition += " AND #held = :h"
		values[":h"] = &types.AttributeValueMemberS{Value: holder}
	}
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.itemKey(ref),
		UpdateExpression:    aws.String("SET #booked = :f, #held = :empty REMOVE #reserved"),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeNames: map[string]string{
			"#booked":   "booked",
			"#held":     "held_by",
			"#reserved": "reserved_at",
		},
		ExpressionAttributeValues: values,
	})
	if err == nil {
		return true, nil
	}
	if !isConditionFailed(err) {
		return false, fmt.Errorf("schedule: release slot: %w", err)
	}
	if _, getErr := d.Get(ctx, ref); getErr != nil {
		return false, getErr
	}
	return false, nil
}

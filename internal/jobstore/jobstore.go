// Package jobstore implements an optional durable mirror of the
// Orchestrator's in-memory JobRegistry, per SPEC_FULL.md §4.1's
// expansion: a DynamoDB-backed recency index so the HTTP surface's
// list() survives a process restart or runs against a horizontally
// scaled orchestrator.
//
// Grounded in full on the teacher's internal/mcpserver/store.go: the same
// single-table PK/SK + GSI1 recency-query design (GSI1PK="JOBS",
// GSI1SK="{created_at}#{id}"), the same conditional-create guard
// (attribute_not_exists(PK)), and the same cursor-is-the-GSI1SK-value
// pagination scheme, adapted from PodcastItem's podcast-generation fields
// to job.Snapshot's dub-pipeline fields.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/job"
)

// Item is the DynamoDB record for one Job, mirrored from job.Snapshot.
//
// CostItems (the ledger's per-stage breakdown) is intentionally not
// mirrored: ledgerItemSnapshot is unexported in internal/job, so only
// CostTotal survives the round trip. The mirror exists for list/status
// durability, not full ledger reconstruction — a restarted process loses
// line-item detail but keeps every job's total and terminal state.
type Item struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	JobID  string `dynamodbav:"jobId"`
	Kind   string `dynamodbav:"kind"`
	Status string `dynamodbav:"status"`
	Stage  string `dynamodbav:"stage,omitempty"`

	Percent   int     `dynamodbav:"percent"`
	CostTotal float64 `dynamodbav:"costTotal,omitempty"`

	ArtifactPathsJSON string `dynamodbav:"artifactPathsJson,omitempty"`

	WinningModel  string `dynamodbav:"winningModel,omitempty"`
	WinningRegion string `dynamodbav:"winningRegion,omitempty"`

	ErrKind    string `dynamodbav:"errKind,omitempty"`
	ErrStage   string `dynamodbav:"errStage,omitempty"`
	ErrMessage string `dynamodbav:"errMessage,omitempty"`

	CreatedAt string `dynamodbav:"createdAt"`
	StartedAt string `dynamodbav:"startedAt,omitempty"`
	EndedAt   string `dynamodbav:"endedAt,omitempty"`
}

// Store handles DynamoDB operations for the job index mirror.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// NewStore creates a DynamoDB-backed job store.
func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func snapshotToItem(snap job.Snapshot) (Item, error) {
	pathsJSON, err := json.Marshal(snap.ArtifactPaths)
	if err != nil {
		return Item{}, fmt.Errorf("jobstore: marshal artifact paths: %w", err)
	}

	item := Item{
		PK:                "JOB#" + snap.ID,
		SK:                "METADATA",
		GSI1PK:            "JOBS",
		GSI1SK:            formatTime(snap.CreatedAt) + "#" + snap.ID,
		JobID:             snap.ID,
		Kind:              string(snap.Kind),
		Status:            string(snap.Status),
		Stage:             snap.Stage,
		Percent:           snap.Percent,
		CostTotal:         snap.CostTotal,
		ArtifactPathsJSON: string(pathsJSON),
		WinningModel:      snap.WinningModel,
		WinningRegion:     snap.WinningRegion,
		CreatedAt:         formatTime(snap.CreatedAt),
		StartedAt:         formatTime(snap.StartedAt),
		EndedAt:           formatTime(snap.EndedAt),
	}
	if snap.Err != nil {
		item.ErrKind = string(snap.Err.Kind)
		item.ErrStage = snap.Err.Stage
		item.ErrMessage = snap.Err.Message
	}
	return item, nil
}

func itemToSnapshot(it Item) job.Snapshot {
	var paths map[string]string
	if it.ArtifactPathsJSON != "" {
		_ = json.Unmarshal([]byte(it.ArtifactPathsJSON), &paths)
	}

	snap := job.Snapshot{
		ID:            it.JobID,
		Kind:          job.Kind(it.Kind),
		Status:        job.Status(it.Status),
		Stage:         it.Stage,
		Percent:       it.Percent,
		ArtifactPaths: paths,
		WinningModel:  it.WinningModel,
		WinningRegion: it.WinningRegion,
		CostTotal:     it.CostTotal,
		CreatedAt:     parseTime(it.CreatedAt),
		StartedAt:     parseTime(it.StartedAt),
		EndedAt:       parseTime(it.EndedAt),
	}
	if it.ErrMessage != "" {
		snap.Err = apierr.New(apierr.Kind(it.ErrKind), it.ErrStage, it.ErrMessage, nil)
	}
	return snap
}

// CreateJob inserts a new job record, failing if one already exists for
// this id (the teacher's attribute_not_exists(PK) guard).
func (s *Store) CreateJob(ctx context.Context, snap job.Snapshot) error {
	item, err := snapshotToItem(snap)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("jobstore: marshal job item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("jobstore: put job item: %w", err)
	}
	return nil
}

// UpdateProgress updates a job's stage/percent without touching its
// terminal fields.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, percent int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       jobKey(id),
		UpdateExpression: aws.String("SET #status = :status, stage = :stage, percent = :pct"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(job.StatusRunning)},
			":stage":  &types.AttributeValueMemberS{Value: stage},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", percent)},
		},
	})
	if err != nil {
		return fmt.Errorf("jobstore: update progress: %w", err)
	}
	return nil
}

// CompleteJob marks a job complete with its final snapshot state.
func (s *Store) CompleteJob(ctx context.Context, snap job.Snapshot) error {
	item, err := snapshotToItem(snap)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       jobKey(snap.ID),
		UpdateExpression: aws.String(
			"SET #status = :status, stage = :stage, percent = :pct, costTotal = :cost, " +
				"artifactPathsJson = :paths, winningModel = :wmodel, winningRegion = :wregion, endedAt = :ended"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: item.Status},
			":stage":   &types.AttributeValueMemberS{Value: item.Stage},
			":pct":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", item.Percent)},
			":cost":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%f", item.CostTotal)},
			":paths":   &types.AttributeValueMemberS{Value: item.ArtifactPathsJSON},
			":wmodel":  &types.AttributeValueMemberS{Value: item.WinningModel},
			":wregion": &types.AttributeValueMemberS{Value: item.WinningRegion},
			":ended":   &types.AttributeValueMemberS{Value: item.EndedAt},
		},
	})
	if err != nil {
		return fmt.Errorf("jobstore: complete job: %w", err)
	}
	return nil
}

// FailJob marks a job failed, recording its structured error.
func (s *Store) FailJob(ctx context.Context, id string, apiErr *apierr.Error) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       jobKey(id),
		UpdateExpression: aws.String(
			"SET #status = :status, errKind = :ekind, errStage = :estage, errMessage = :emsg, endedAt = :ended"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(job.StatusFailed)},
			":ekind":  &types.AttributeValueMemberS{Value: string(apiErr.Kind)},
			":estage": &types.AttributeValueMemberS{Value: apiErr.Stage},
			":emsg":   &types.AttributeValueMemberS{Value: apiErr.Message},
			":ended":  &types.AttributeValueMemberS{Value: formatTime(time.Now())},
		},
	})
	if err != nil {
		return fmt.Errorf("jobstore: fail job: %w", err)
	}
	return nil
}

// CancelJob marks a job cancelled.
func (s *Store) CancelJob(ctx context.Context, id string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       jobKey(id),
		UpdateExpression: aws.String("SET #status = :status, endedAt = :ended"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(job.StatusCancelled)},
			":ended":  &types.AttributeValueMemberS{Value: formatTime(time.Now())},
		},
	})
	if err != nil {
		return fmt.Errorf("jobstore: cancel job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job's mirrored snapshot, or nil if absent.
func (s *Store) GetJob(ctx context.Context, id string) (*job.Snapshot, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       jobKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item Item
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("jobstore: unmarshal job: %w", err)
	}
	snap := itemToSnapshot(item)
	return &snap, nil
}

// ListJobs returns jobs ordered by creation time (newest first) via GSI1,
// the teacher's ListPodcasts pagination scheme.
func (s *Store) ListJobs(ctx context.Context, limit int, cursor string) ([]job.Snapshot, string, error) {
	if limit <= 0 {
		limit = 20
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "JOBS"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		parts := strings.SplitN(cursor, "#", 2)
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("jobstore: invalid cursor format")
		}
		jobID := parts[1]
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: "JOB#" + jobID},
			"SK":     &types.AttributeValueMemberS{Value: "METADATA"},
			"GSI1PK": &types.AttributeValueMemberS{Value: "JOBS"},
			"GSI1SK": &types.AttributeValueMemberS{Value: cursor},
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("jobstore: list jobs: %w", err)
	}

	var items []Item
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("jobstore: unmarshal job list: %w", err)
	}

	snaps := make([]job.Snapshot, len(items))
	for i, it := range items {
		snaps[i] = itemToSnapshot(it)
	}

	var nextCursor string
	if result.LastEvaluatedKey != nil {
		if gsi1sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			nextCursor = gsi1sk.Value
		}
	}

	return snaps, nextCursor, nil
}

func jobKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "JOB#" + id},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

// Package dynamodb provides a DynamoDB implementation of the ledger.
//
// The table uses "owner" as partition key and "document_id" as sort key,
// both strings. Entries are written with a conditional put so that
// re-marking a known document never overwrites the original entry.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

const (
	backendName = "dynamodb"

	attrOwner        = "owner"
	attrDocumentID   = "document_id"
	attrDownloadedAt = "downloaded_at"
	attrTags         = "tags"
)

// API is the subset of the DynamoDB client used by the ledger.
type API interface {
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Config holds the connection settings.
type Config struct {
	Table  string
	Region string

	// Endpoint overrides the service endpoint (e.g. DynamoDB Local).
	Endpoint string

	// AccessKeyID and SecretAccessKey select static credentials.
	// When empty the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	MaxRetries int
}

// Ensure Ledger implements the interface.
var _ driven.Ledger = (*Ledger)(nil)

// Ledger implements driven.Ledger on a DynamoDB table.
type Ledger struct {
	client API
	table  string
}

// New loads the AWS configuration and creates a ledger.
// No request is sent until the first access.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table: %w", domain.ErrInvalidInput)
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxRetries))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	client := dynamodb.NewFromConfig(sdkConfig, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Table), nil
}

// NewWithClient creates a ledger on an existing client.
func NewWithClient(client API, table string) *Ledger {
	return &Ledger{client: client, table: table}
}

// Get queries every id recorded for the owner.
func (l *Ledger) Get(ctx context.Context, owner string) (domain.IDSet, error) {
	p := dynamodb.NewQueryPaginator(l.client, &dynamodb.QueryInput{
		TableName:              aws.String(l.table),
		KeyConditionExpression: aws.String("#o = :o"),
		ProjectionExpression:   aws.String("#d"),
		ExpressionAttributeNames: map[string]string{
			"#o": attrOwner,
			"#d": attrDocumentID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: owner},
		},
	})

	ids := domain.NewIDSet()
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, unavailable("get", err)
		}
		for _, item := range page.Items {
			if id := stringAttr(item, attrDocumentID); id != "" {
				ids.Add(id)
			}
		}
	}
	return ids, nil
}

// Put writes the entry unless the (owner, id) pair already exists.
func (l *Ledger) Put(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.Owner == "" || entry.DocumentID == "" {
		return domain.ErrInvalidInput
	}
	downloadedAt := entry.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now()
	}

	item := map[string]types.AttributeValue{
		attrOwner:        &types.AttributeValueMemberS{Value: entry.Owner},
		attrDocumentID:   &types.AttributeValueMemberS{Value: entry.DocumentID},
		attrDownloadedAt: &types.AttributeValueMemberS{Value: downloadedAt.UTC().Format(time.RFC3339Nano)},
	}
	if len(entry.Tags) > 0 {
		tags := make(map[string]types.AttributeValue, len(entry.Tags))
		for k, v := range entry.Tags {
			tags[k] = &types.AttributeValueMemberS{Value: v}
		}
		item[attrTags] = &types.AttributeValueMemberM{Value: tags}
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(l.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#d)"),
		ExpressionAttributeNames: map[string]string{"#d": attrDocumentID},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return unavailable("put", err)
	}
	return nil
}

// Scan reads the whole table, ordered by owner then document id.
func (l *Ledger) Scan(ctx context.Context) ([]domain.LedgerEntry, error) {
	p := dynamodb.NewScanPaginator(l.client, &dynamodb.ScanInput{
		TableName: aws.String(l.table),
	})

	var entries []domain.LedgerEntry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, unavailable("scan", err)
		}
		for _, item := range page.Items {
			entries = append(entries, entryFromItem(item))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Owner != entries[j].Owner {
			return entries[i].Owner < entries[j].Owner
		}
		return entries[i].DocumentID < entries[j].DocumentID
	})
	return entries, nil
}

func entryFromItem(item map[string]types.AttributeValue) domain.LedgerEntry {
	entry := domain.LedgerEntry{
		Owner:      stringAttr(item, attrOwner),
		DocumentID: stringAttr(item, attrDocumentID),
	}
	if t, err := time.Parse(time.RFC3339Nano, stringAttr(item, attrDownloadedAt)); err == nil {
		entry.DownloadedAt = t
	}
	if m, ok := item[attrTags].(*types.AttributeValueMemberM); ok {
		entry.Tags = make(map[string]string, len(m.Value))
		for k := range m.Value {
			entry.Tags[k] = stringAttr(m.Value, k)
		}
	}
	return entry
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func unavailable(op string, err error) error {
	return &domain.BackendUnavailableError{Backend: backendName, Op: op, Err: err}
}

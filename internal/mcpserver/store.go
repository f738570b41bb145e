package mcpserver

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Store handles DynamoDB operations for API keys, user accounts, and usage
// rollups shared by every transport in front of the Orchestrator. Job state
// itself lives in internal/jobstore.Store — Store here is strictly the
// account/auth side of the same table, mirroring how the teacher kept
// auth concerns on the same Store as the data it was guarding.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// NewStore creates a DynamoDB-backed account store.
func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

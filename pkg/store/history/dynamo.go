// Copyright 2026 NetShield Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history implements executor.HistoryStore against a DynamoDB
// table keyed by (childPhoneNumber, timestamp), the append-only audit
// log matching the reference implementation's enforcement history
// table.
package history

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
)

// DefaultRetention matches the reference's 90-day history TTL.
const DefaultRetention = 90 * 24 * time.Hour

type historyItem struct {
	ChildPhoneNumber string `dynamodbav:"childPhoneNumber"`
	Timestamp        string `dynamodbav:"timestamp"`
	Action           string `dynamodbav:"action"`
	AppName          string `dynamodbav:"appName"`
	PrivateIP        string `dynamodbav:"privateIP"`
	RuleID           string `dynamodbav:"ruleId"`
	Status           string `dynamodbav:"status"`
	ErrorMessage     string `dynamodbav:"errorMessage"`
	TTL              int64  `dynamodbav:"ttl"`
}

// Store is a DynamoDB-backed executor.HistoryStore.
type Store struct {
	client *dynamodb.Client
	table  string
}

// New builds a Store against the given table name.
func New(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

// Append writes one audit row with an unconditional PutItem keyed by
// (phoneId, timestamp at nanosecond precision), so a second row for the
// same phone with an identical timestamp replaces the first.
func (s *Store) Append(ctx context.Context, record *model.HistoryRecord) error {
	item := historyItem{
		ChildPhoneNumber: record.PhoneID,
		Timestamp:        record.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:           string(record.Action),
		AppName:          record.AppName,
		PrivateIP:        record.Address,
		RuleID:           record.RuleID,
		Status:           string(record.Status),
		TTL:              record.Timestamp.Add(DefaultRetention).Unix(),
	}
	if record.ErrorKind != "" {
		item.ErrorMessage = string(record.ErrorKind)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nserrors.Wrap(nserrors.Malformed, "historystore.marshal", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.table, Item: av}); err != nil {
		return nserrors.Wrap(nserrors.Transient, "historystore.put", err)
	}
	return nil
}

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

// Package counter implements executor.CounterStore against a DynamoDB
// table keyed by (childPhoneNumber, dateApp), where dateApp is
// "YYYY-MM-DD#appName", matching the reference blocked-metrics table
// and its atomic ADD-expression increment.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	nserrors "github.com/netshield/enforcer/pkg/errors"
)

// DefaultRetention matches the reference's 1-year metrics TTL.
const DefaultRetention = 365 * 24 * time.Hour

// Store is a DynamoDB-backed executor.CounterStore.
type Store struct {
	client *dynamodb.Client
	table  string
}

// New builds a Store against the given table name.
func New(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

// Increment atomically bumps the (phoneId, date, appName) counter and
// its hourly breakdown using an UpdateItem ADD expression, exactly as
// the reference's increment_blocked_metric does, so concurrent
// enforcement of the same app across retries never loses a count to a
// read-modify-write race.
func (s *Store) Increment(ctx context.Context, phoneID, appName string, at time.Time) error {
	date, hour, dateApp := dateAppKey(appName, at)

	key, err := attributevalue.MarshalMap(map[string]string{
		"childPhoneNumber": phoneID,
		"dateApp":          dateApp,
	})
	if err != nil {
		return nserrors.Wrap(nserrors.Malformed, "counterstore.marshal_key", err)
	}

	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":date":      date,
		":appName":   appName,
		":timestamp": at.UTC().Format(time.RFC3339),
		":inc":       1,
		":ttl":       at.Add(DefaultRetention).Unix(),
	})
	if err != nil {
		return nserrors.Wrap(nserrors.Malformed, "counterstore.marshal_values", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key:       key,
		UpdateExpression: strPtr(
			"SET #date = :date, appName = :appName, timestampLast = :timestamp, #ttl = :ttl ADD blockedCount :inc, hourly.#hour :inc",
		),
		ExpressionAttributeNames: map[string]string{
			"#date": "date",
			"#hour": hour,
			"#ttl":  "ttl",
		},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueNone,
	})
	if err != nil {
		return nserrors.Wrap(nserrors.Transient, "counterstore.update", err)
	}
	return nil
}

// dateAppKey derives the date, hour-of-day, and composite dateApp sort
// key used by Increment, split out so the format is unit-testable
// without a live DynamoDB client.
func dateAppKey(appName string, at time.Time) (date, hour, dateApp string) {
	date = at.UTC().Format("2006-01-02")
	hour = at.UTC().Format("15")
	dateApp = fmt.Sprintf("%s#%s", date, appName)
	return date, hour, dateApp
}

func strPtr(s string) *string { return &s }

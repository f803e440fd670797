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

// Package mapping implements executor.MappingStore against a DynamoDB
// table keyed by (childPhoneNumber, ruleId), matching the reference
// implementation's FTD rule mapping table.
package mapping

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
)

// DefaultTTL matches the reference's 24-hour mapping TTL; a mapping is
// refreshed on every successful verify/migrate, so a live session's
// mapping never actually expires.
const DefaultTTL = 24 * time.Hour

type mappingItem struct {
	ChildPhoneNumber string `dynamodbav:"childPhoneNumber"`
	RuleID           string `dynamodbav:"ruleId"`
	RuleName         string `dynamodbav:"ruleName"`
	PrivateIP        string `dynamodbav:"privateIP"`
	AppName          string `dynamodbav:"appName"`
	PolicyID         string `dynamodbav:"policyId"`
	Status           string `dynamodbav:"status"`
	CreatedAt        string `dynamodbav:"createdAt"`
	LastVerified     string `dynamodbav:"lastVerified"`
	TTL              int64  `dynamodbav:"ttl"`
}

// Store is a DynamoDB-backed executor.MappingStore.
type Store struct {
	client *dynamodb.Client
	table  string
}

// New builds a Store against the given table name.
func New(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

func toItem(m *model.RuleMapping) mappingItem {
	return mappingItem{
		ChildPhoneNumber: m.PhoneID,
		RuleID:           m.RuleID,
		PrivateIP:        m.Address,
		AppName:          m.AppName,
		PolicyID:         m.PolicyID,
		Status:           string(m.Status),
		CreatedAt:        m.CreatedAt.UTC().Format(time.RFC3339),
		LastVerified:     m.LastVerifiedAt.UTC().Format(time.RFC3339),
		TTL:              m.LastVerifiedAt.Add(DefaultTTL).Unix(),
	}
}

func fromItem(item mappingItem) model.RuleMapping {
	created, _ := time.Parse(time.RFC3339, item.CreatedAt)
	verified, _ := time.Parse(time.RFC3339, item.LastVerified)
	status := model.MappingActive
	if item.Status != "" {
		status = model.MappingStatus(item.Status)
	}
	return model.RuleMapping{
		PhoneID: item.ChildPhoneNumber, RuleID: item.RuleID, AppName: item.AppName,
		PolicyID: item.PolicyID, Address: item.PrivateIP, Status: status,
		CreatedAt: created, LastVerifiedAt: verified,
	}
}

// Get fetches the mapping for (phoneID, appName) via a Query of this
// partition: the table's native key is (phoneID, ruleID), not
// (phoneID, appName), matching the reference schema, so a lookup by
// appName costs one partition-scoped query rather than a GetItem.
func (s *Store) Get(ctx context.Context, phoneID, appName string) (*model.RuleMapping, bool, error) {
	mappings, err := s.ListForPhone(ctx, phoneID)
	if err != nil {
		return nil, false, err
	}
	for i := range mappings {
		if mappings[i].AppName == appName && mappings[i].Status == model.MappingActive {
			return &mappings[i], true, nil
		}
	}
	return nil, false, nil
}

// Put writes (or overwrites) a mapping.
func (s *Store) Put(ctx context.Context, m *model.RuleMapping) error {
	item, err := attributevalue.MarshalMap(toItem(m))
	if err != nil {
		return nserrors.Wrap(nserrors.Malformed, "mappingstore.marshal", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.table, Item: item})
	if err != nil {
		return nserrors.Wrap(nserrors.Transient, "mappingstore.put", err)
	}
	return nil
}

// Delete removes the mapping keyed by (phoneID, ruleID).
func (s *Store) Delete(ctx context.Context, phoneID, ruleID string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"childPhoneNumber": phoneID, "ruleId": ruleID})
	if err != nil {
		return nserrors.Wrap(nserrors.Malformed, "mappingstore.marshal_key", err)
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &s.table, Key: key})
	if err != nil {
		return nserrors.Wrap(nserrors.Transient, "mappingstore.delete", err)
	}
	return nil
}

// ListForPhone returns every mapping in phoneID's partition, matching
// the reference's get_ftd_rules_for_phone query.
func (s *Store) ListForPhone(ctx context.Context, phoneID string) ([]model.RuleMapping, error) {
	phoneVal, err := attributevalue.Marshal(phoneID)
	if err != nil {
		return nil, nserrors.Wrap(nserrors.Malformed, "mappingstore.marshal_key", err)
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &s.table,
		KeyConditionExpression:    strPtr("childPhoneNumber = :phone"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":phone": phoneVal},
	})
	if err != nil {
		return nil, nserrors.Wrap(nserrors.Transient, "mappingstore.query", err)
	}

	mappings := make([]model.RuleMapping, 0, len(out.Items))
	for _, raw := range out.Items {
		var item mappingItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, nserrors.Wrap(nserrors.Malformed, "mappingstore.unmarshal", err)
		}
		mappings = append(mappings, fromItem(item))
	}
	return mappings, nil
}

// ListStale scans the table for mappings unverified since staleness
// ago, for the reconciliation sweep. A Scan is used because the
// reference schema carries no status+lastVerified index; at the scale
// this table is expected to run at (active sessions, not historical
// rows), a periodic full scan bounded by limit is acceptable.
func (s *Store) ListStale(ctx context.Context, now time.Time, staleness time.Duration, limit int) ([]model.RuleMapping, error) {
	threshold := now.Add(-staleness).UTC().Format(time.RFC3339)
	thresholdVal, err := attributevalue.Marshal(threshold)
	if err != nil {
		return nil, nserrors.Wrap(nserrors.Malformed, "mappingstore.marshal_threshold", err)
	}

	limit32 := int32(limit)
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:                 &s.table,
		FilterExpression:          strPtr("lastVerified < :threshold"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":threshold": thresholdVal},
		Limit:                     &limit32,
	})
	if err != nil {
		return nil, nserrors.Wrap(nserrors.Transient, "mappingstore.scan", err)
	}

	mappings := make([]model.RuleMapping, 0, len(out.Items))
	for _, raw := range out.Items {
		var item mappingItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, nserrors.Wrap(nserrors.Malformed, "mappingstore.unmarshal", err)
		}
		mappings = append(mappings, fromItem(item))
	}
	return mappings, nil
}

func strPtr(s string) *string { return &s }

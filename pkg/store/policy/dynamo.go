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

// Package policy implements the Policy Resolver's Store interface
// against a DynamoDB table keyed by (childPhoneNumber, policyId),
// matching the reference implementation's policies table.
package policy

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
)

var weekdayByAbbrev = map[string]time.Weekday{
	"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday,
	"WED": time.Wednesday, "THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
}

// portItem mirrors the reference's {port, protocol} port rule shape.
type portItem struct {
	Port     int    `dynamodbav:"port"`
	Protocol string `dynamodbav:"protocol"`
}

type appItem struct {
	AppName string     `dynamodbav:"appName"`
	Ports   []portItem `dynamodbav:"ports"`
}

type timeWindowItem struct {
	StartTime string   `dynamodbav:"startTime"`
	EndTime   string   `dynamodbav:"endTime"`
	Days      []string `dynamodbav:"days"`
}

type policyItem struct {
	ChildPhoneNumber string           `dynamodbav:"childPhoneNumber"`
	PolicyID         string           `dynamodbav:"policyId"`
	ParentEmail      string           `dynamodbav:"parentEmail"`
	BlockedApps      []appItem        `dynamodbav:"blockedApps"`
	TimeWindows      []timeWindowItem `dynamodbav:"timeWindows"`
	Status           string           `dynamodbav:"status"`
}

// Store is a DynamoDB-backed implementation of policy.Store.
type Store struct {
	client *dynamodb.Client
	table  string
}

// New builds a Store against the given DynamoDB table name.
func New(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

// PoliciesForPhone queries every policy row for phoneID, regardless of
// status; status and time-window filtering is the resolver's job,
// matching the reference's get_ftd_rules_for_phone style
// full-partition query rather than a status-filtered one, so a
// freshly-SUSPENDED policy is observed immediately rather than via a
// stale filter result.
func (s *Store) PoliciesForPhone(ctx context.Context, phoneID string) ([]model.Policy, error) {
	phoneVal, err := attributevalue.Marshal(phoneID)
	if err != nil {
		return nil, nserrors.Wrap(nserrors.Malformed, "policystore.marshal_key", err)
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &s.table,
		KeyConditionExpression:    awsString("childPhoneNumber = :phone"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":phone": phoneVal},
	})
	if err != nil {
		return nil, nserrors.Wrap(classifyDynamoError(err), "policystore.query", err)
	}

	policies := make([]model.Policy, 0, len(out.Items))
	for _, raw := range out.Items {
		var item policyItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, nserrors.Wrap(nserrors.Malformed, "policystore.unmarshal", err)
		}
		policies = append(policies, toDomain(item))
	}
	return policies, nil
}

func toDomain(item policyItem) model.Policy {
	apps := make([]model.AppRule, 0, len(item.BlockedApps))
	for _, a := range item.BlockedApps {
		ports := make([]model.PortRule, 0, len(a.Ports))
		for _, p := range a.Ports {
			ports = append(ports, model.PortRule{Protocol: p.Protocol, Port: p.Port})
		}
		apps = append(apps, model.AppRule{AppName: a.AppName, Ports: ports})
	}

	windows := make([]model.TimeWindow, 0, len(item.TimeWindows))
	for _, tw := range item.TimeWindows {
		windows = append(windows, model.TimeWindow{
			Start:    parseHHMM(tw.StartTime),
			End:      parseHHMM(tw.EndTime),
			Weekdays: parseWeekdays(tw.Days),
		})
	}

	return model.Policy{
		PolicyID:          item.PolicyID,
		SubscriberPhoneID: item.ChildPhoneNumber,
		ParentContact:     item.ParentEmail,
		BlockedApps:       apps,
		TimeWindows:       windows,
		Status:            model.PolicyStatus(strings.ToUpper(item.Status)),
	}
}

// parseHHMM parses a reference-style "HH:MM" time-of-day into an
// offset-from-midnight duration. An unparseable value yields 0 rather
// than failing the whole policy, since a malformed window should not
// take down enforcement for every other app in the policy.
func parseHHMM(s string) time.Duration {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil {
		return 0
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

func parseWeekdays(days []string) []time.Weekday {
	weekdays := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if wd, ok := weekdayByAbbrev[strings.ToUpper(d)]; ok {
			weekdays = append(weekdays, wd)
		}
	}
	return weekdays
}

func classifyDynamoError(err error) nserrors.Kind {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return nserrors.Fatal
	}
	var throttled *types.ProvisionedThroughputExceededException
	if errors.As(err, &throttled) {
		return nserrors.RateLimited
	}
	return nserrors.Transient
}

func awsString(s string) *string { return &s }

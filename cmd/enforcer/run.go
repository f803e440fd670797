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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/netshield/enforcer/pkg/config"
	"github.com/netshield/enforcer/pkg/consumer"
	"github.com/netshield/enforcer/pkg/dispatcher"
	"github.com/netshield/enforcer/pkg/executor"
	"github.com/netshield/enforcer/pkg/facade"
	"github.com/netshield/enforcer/pkg/health"
	"github.com/netshield/enforcer/pkg/index"
	"github.com/netshield/enforcer/pkg/index/replica"
	nslog "github.com/netshield/enforcer/pkg/log"
	"github.com/netshield/enforcer/pkg/metrics"
	"github.com/netshield/enforcer/pkg/pipeline"
	"github.com/netshield/enforcer/pkg/policy"
	countertable "github.com/netshield/enforcer/pkg/store/counter"
	historytable "github.com/netshield/enforcer/pkg/store/history"
	mappingtable "github.com/netshield/enforcer/pkg/store/mapping"
	policytable "github.com/netshield/enforcer/pkg/store/policy"
	"github.com/netshield/enforcer/pkg/tracing"
)

// shutdownGrace bounds the health/metrics HTTP server's graceful
// shutdown after the context is cancelled. Dispatcher workers receive
// the cancelled context directly, so in-flight enforcement tasks are not
// given this window to finish.
const shutdownGrace = 60 * time.Second

func newRunCommand(configPath *string) *cobra.Command {
	var healthAddr string
	var otelCollector string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the event consumer and enforcement pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnforcer(cmd.Context(), *configPath, healthAddr, otelCollector)
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", ":8080", "address to serve /healthz and /metrics on")
	cmd.Flags().StringVar(&otelCollector, "otel-collector", "", "OTLP/gRPC collector address (tracing disabled if empty)")
	return cmd
}

func runEnforcer(ctx context.Context, configPath, healthAddr, otelCollector string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return wrapConfigError(err)
	}
	nslog.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if otelCollector != "" {
		shutdownTracing, err := tracing.Init(ctx, otelCollector)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				klog.ErrorS(err, "Failed to flush tracer provider")
			}
		}()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	policyStore := policytable.New(dynamoClient, cfg.Store.PolicyTable)
	mappingStore := mappingtable.New(dynamoClient, cfg.Store.MappingTable)
	historyStore := historytable.New(dynamoClient, cfg.Store.HistoryTable)
	counterStore := countertable.New(dynamoClient, cfg.Store.CounterTable)

	var sessionReplica *replica.Redis
	if cfg.Redis.Enabled {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
		sessionReplica = replica.New(redisClient)
	}

	facadeClient := facade.New(cfg.Facade.URL, facade.WithHTTPClient(&http.Client{Timeout: cfg.Facade.Timeout.Duration}))

	if err := health.CheckStartup(ctx, redisPingerOrNil(sessionReplica), facadeClient); err != nil {
		return err
	}

	var idx *index.Index
	if sessionReplica != nil {
		idx = index.New(cfg.Index.Shards, cfg.Index.SessionTTL.Duration, sessionReplica)
	} else {
		idx = index.New(cfg.Index.Shards, cfg.Index.SessionTTL.Duration, nil)
	}

	resolver := policy.NewResolver(policyStore, policy.WithCacheTTL(cfg.Policy.CacheTTL.Duration))
	execOpts := []executor.Option{executor.WithFacadeMaxInFlight(cfg.Facade.MaxInFlight)}
	if cfg.Facade.MaxQPS > 0 {
		execOpts = append(execOpts, executor.WithFacadeRateLimit(cfg.Facade.MaxQPS, int(cfg.Facade.MaxInFlight)))
	}
	exec := executor.New(facadeClient, mappingStore, historyStore, counterStore, execOpts...)

	stats := &pipeline.Stats{}
	disp := dispatcher.New(stats.WrapExecute(exec),
		dispatcher.WithMaxDepth(cfg.Dispatch.QueueCap),
		dispatcher.WithMaxRetries(cfg.Facade.MaxRetries),
		dispatcher.WithMetrics(&metrics.DispatcherSink{}))

	pipe := pipeline.New(idx, resolver, disp)

	brokers := strings.Split(cfg.EventSource.Addr, ",")
	kafkaClient, err := consumer.NewClient(brokers, cfg.EventSource.Topic, cfg.EventSource.ConsumerGroup)
	if err != nil {
		return fmt.Errorf("building kafka client: %w", err)
	}
	defer kafkaClient.Close()
	deadLetter := consumer.NewDeadLetterProducer(kafkaClient, cfg.EventSource.DeadLetterTopic)
	cons := consumer.New(kafkaClient, pipe.HandleEvent, deadLetter)

	httpServer := &http.Server{Addr: healthAddr, Handler: health.NewMux()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		klog.InfoS("Starting health/metrics server", "addr", healthAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		disp.Run(gctx, cfg.Dispatch.Workers)
		return nil
	})

	g.Go(func() error {
		exec.Run(gctx, cfg.Reconcile.Interval.Duration)
		return nil
	})

	g.Go(func() error {
		sweepSessionIndex(gctx, idx, pipe, cfg.Index.SessionTTL.Duration)
		return nil
	})

	g.Go(func() error {
		klog.InfoS("Starting event consumer", "topic", cfg.EventSource.Topic, "group", cfg.EventSource.ConsumerGroup)
		err := cons.Run(gctx)
		if err != nil && gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		stats.Final()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// sweepSessionIndex periodically evicts expired sessions, enqueues a
// Remove task for each one through the same path a SESSION_END event
// uses, and publishes the Session Index's current size. This is what
// bounds how long a mapping can outlive its session when its
// SESSION_END is lost or delayed: the sweep interval (a quarter of the
// session TTL) is the enforced grace window, matching the reference
// kafka-subscriber's idle-session TTL sweep.
func sweepSessionIndex(ctx context.Context, idx *index.Index, pipe *pipeline.Pipeline, ttl time.Duration) {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired := idx.SweepExpired(now)
			for _, session := range expired {
				if err := pipe.EnqueueEvictionRemoval(session); err != nil {
					klog.ErrorS(err, "Failed to enqueue teardown for evicted session",
						"subscriberId", session.SubscriberID, "phoneId", session.PhoneID)
				}
			}
			if len(expired) > 0 {
				klog.V(1).InfoS("Swept expired sessions", "count", len(expired))
			}
			metrics.SessionIndexSize.Set(float64(idx.Size()))
		}
	}
}

func redisPingerOrNil(r *replica.Redis) health.RedisPinger {
	if r == nil {
		return nil
	}
	return r
}

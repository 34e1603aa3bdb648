// Copyright 2025 Helmsman Authors
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

// Package redis implements the execution repository on Redis.
//
// An execution is persisted as a flat hash (one field per scalar, JSON
// blobs for structured values, namespaced stage.<id>.<suffix> fields for
// stages) plus an ordered stage-id list. During rolling migrations the
// repository spans a primary and a previous backend and presents their
// union; the primary wins when both hold a record.
package redis

import (
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/helmsman-io/helmsman/internal/config"
	"github.com/helmsman-io/helmsman/internal/log"
	"github.com/helmsman-io/helmsman/internal/repository"
)

// Compile-time interface assertion.
var _ repository.ExecutionRepository = (*Repository)(nil)

// Repository is the Redis-backed execution repository. It is safe for
// concurrent use; every operation borrows a pooled connection from the
// client for the duration of the call.
type Repository struct {
	router *router
	logger *slog.Logger
	tracer trace.Tracer

	chunkSize           int
	contextMergeRetries int

	// Bounded worker pools for streaming query fan-out. The small pool
	// serves whole-table scans, the larger one application- and
	// pipeline-scoped queries.
	queryAllSem   chan struct{}
	queryByAppSem chan struct{}
}

// Option configures a Repository.
type Option func(*Repository, *options)

type options struct {
	previous          goredis.UniversalClient
	queryAllWorkers   int
	queryByAppWorkers int
}

// WithPreviousBackend adds the backend being migrated away from. Reads
// fall through to it; new records are always written to the primary.
func WithPreviousBackend(client goredis.UniversalClient) Option {
	return func(_ *Repository, o *options) {
		o.previous = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository, _ *options) {
		r.logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer used to trace repository
// operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Repository, _ *options) {
		r.tracer = tracer
	}
}

// WithChunkSize sets the number of ids handed to one query worker at a
// time.
func WithChunkSize(n int) Option {
	return func(r *Repository, _ *options) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithQueryAllWorkers bounds fan-out for whole-table scans.
func WithQueryAllWorkers(n int) Option {
	return func(_ *Repository, o *options) {
		if n > 0 {
			o.queryAllWorkers = n
		}
	}
}

// WithQueryByAppWorkers bounds fan-out for scoped queries.
func WithQueryByAppWorkers(n int) Option {
	return func(_ *Repository, o *options) {
		if n > 0 {
			o.queryByAppWorkers = n
		}
	}
}

// WithContextMergeRetries caps StoreExecutionContext retry attempts
// before contention surfaces as a BackendError.
func WithContextMergeRetries(n int) Option {
	return func(r *Repository, _ *options) {
		if n > 0 {
			r.contextMergeRetries = n
		}
	}
}

// New creates a repository on the given primary backend. Connection
// pooling is the client's concern; the repository never shares one
// connection across concurrent logical operations.
func New(primary goredis.UniversalClient, opts ...Option) *Repository {
	r := &Repository{
		logger:              slog.Default(),
		tracer:              otel.Tracer("helmsman/repository"),
		chunkSize:           config.DefaultChunkSize,
		contextMergeRetries: config.DefaultContextMergeRetries,
	}
	o := &options{
		queryAllWorkers:   config.DefaultQueryAllWorkers,
		queryByAppWorkers: config.DefaultQueryByAppWorkers,
	}
	for _, opt := range opts {
		opt(r, o)
	}
	r.logger = log.WithComponent(r.logger, "execution-repository")
	r.router = newRouter(primary, o.previous)
	r.queryAllSem = make(chan struct{}, o.queryAllWorkers)
	r.queryByAppSem = make(chan struct{}, o.queryByAppWorkers)
	return r
}

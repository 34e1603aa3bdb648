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

package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// backend pairs a client with a name for logging and metrics.
type backend struct {
	name   string
	client goredis.UniversalClient
}

// router owns the primary and optional previous backend handles and
// locates which backend holds a given execution.
//
// Existence probes are cheap key lookups and are not cached: records
// move between backends as executions are migrated or cleared.
type router struct {
	primary  *backend
	previous *backend
}

func newRouter(primary, previous goredis.UniversalClient) *router {
	r := &router{primary: &backend{name: "primary", client: primary}}
	if previous != nil {
		r.previous = &backend{name: "previous", client: previous}
	}
	return r
}

// backends returns the configured backends in routing order.
func (r *router) backends() []*backend {
	if r.previous == nil {
		return []*backend{r.primary}
	}
	return []*backend{r.primary, r.previous}
}

// locate returns the backend holding the given key. The primary wins
// when both hold it; the primary is returned when neither does, so new
// records land there.
func (r *router) locate(ctx context.Context, key string) (*backend, error) {
	for _, b := range r.backends() {
		n, err := b.client.Exists(ctx, key).Result()
		if err != nil {
			return nil, errors.NewBackend("locate", err)
		}
		if n > 0 {
			return b, nil
		}
	}
	return r.primary, nil
}

// fetchKey resolves a bare execution id to the fully-qualified key and
// the backend holding it. Both key forms are probed for each backend:
// pipeline:<id> and orchestration:<id>, plus the id itself in case the
// caller already passed a fully-qualified key.
func (r *router) fetchKey(ctx context.Context, id string) (string, *backend, error) {
	candidates := []string{
		executionKey(execution.Pipeline, id),
		executionKey(execution.Orchestration, id),
	}
	if _, ok := typeFromKey(id); ok {
		candidates = append(candidates, id)
	}

	for _, b := range r.backends() {
		for _, key := range candidates {
			n, err := b.client.Exists(ctx, key).Result()
			if err != nil {
				return "", nil, errors.NewBackend("fetchKey", err)
			}
			if n > 0 {
				return key, b, nil
			}
		}
	}
	return "", nil, errors.NewNotFound("execution", id)
}

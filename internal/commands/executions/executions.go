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

// Package executions provides the executions command group for
// inspecting and mutating stored executions.
package executions

import (
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/helmsman-io/helmsman/internal/config"
	"github.com/helmsman-io/helmsman/internal/repository"
	redisrepo "github.com/helmsman-io/helmsman/internal/repository/redis"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// NewExecutionsCommand creates the executions command group.
func NewExecutionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Inspect and manage stored executions",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newDeleteCommand())

	return cmd
}

// open builds the repository from configuration.
func open(cmd *cobra.Command) (repository.ExecutionRepository, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	primary := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Address,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})

	opts := []redisrepo.Option{
		redisrepo.WithChunkSize(cfg.Repository.ChunkSize),
		redisrepo.WithQueryAllWorkers(cfg.Repository.QueryAllWorkers),
		redisrepo.WithQueryByAppWorkers(cfg.Repository.QueryByAppWorkers),
		redisrepo.WithContextMergeRetries(cfg.Repository.ContextMergeRetries),
	}
	if cfg.Redis.PreviousAddress != "" {
		previous := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.PreviousAddress,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		opts = append(opts, redisrepo.WithPreviousBackend(previous))
	}

	return redisrepo.New(primary, opts...), nil
}

func parseType(raw string) (execution.Type, error) {
	switch strings.ToUpper(raw) {
	case string(execution.Pipeline):
		return execution.Pipeline, nil
	case string(execution.Orchestration):
		return execution.Orchestration, nil
	}
	return "", fmt.Errorf("unknown execution type %q (want PIPELINE or ORCHESTRATION)", raw)
}

func newListCommand() *cobra.Command {
	var (
		rawType     string
		application string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions of a type, optionally scoped to an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open(cmd)
			if err != nil {
				return err
			}

			t, err := parseType(rawType)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var stream <-chan *execution.Execution
			switch {
			case application == "":
				stream, err = repo.RetrieveAll(ctx, t)
			case t == execution.Pipeline:
				stream, err = repo.RetrievePipelinesForApplication(ctx, application)
			default:
				stream, err = repo.RetrieveOrchestrationsForApplication(ctx, application, repository.Criteria{})
			}
			if err != nil {
				return err
			}

			count := 0
			for e := range stream {
				cmd.Printf("%s\t%s\t%s\t%s\n", e.ID, e.Application, e.Status, e.Name)
				count++
			}
			cmd.Printf("%d execution(s)\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&rawType, "type", "PIPELINE", "Execution type (PIPELINE or ORCHESTRATION)")
	cmd.Flags().StringVar(&application, "application", "", "Scope to an application")
	return cmd
}

func newGetCommand() *cobra.Command {
	var rawType string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one execution as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open(cmd)
			if err != nil {
				return err
			}
			t, err := parseType(rawType)
			if err != nil {
				return err
			}

			e, err := repo.Retrieve(cmd.Context(), t, args[0])
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(e, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal execution: %w", err)
			}
			cmd.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&rawType, "type", "PIPELINE", "Execution type (PIPELINE or ORCHESTRATION)")
	return cmd
}

func newCancelCommand() *cobra.Command {
	var (
		user   string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open(cmd)
			if err != nil {
				return err
			}
			if err := repo.Cancel(cmd.Context(), args[0], user, reason); err != nil {
				return err
			}
			cmd.Printf("canceled %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Who is canceling")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the execution is being canceled")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	var rawType string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an execution and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open(cmd)
			if err != nil {
				return err
			}
			t, err := parseType(rawType)
			if err != nil {
				return err
			}
			if err := repo.Delete(cmd.Context(), t, args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&rawType, "type", "PIPELINE", "Execution type (PIPELINE or ORCHESTRATION)")
	return cmd
}

/*
 * Copyright 2024 The chhttp Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package itcases

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	chhttp "github.com/chhttp/chhttp-sdk/go"
)

const (
	StressBatch    = 10000
	StressMaxRows  = 1000000
	StressDuration = time.Minute
)

func stressRows(faker *gofakeit.Faker, idStart int64, n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"id":  idStart + int64(i),
			"bar": faker.HackerPhrase(),
		}
	}
	return rows
}

func streamRows(ctx context.Context, tbl *chhttp.Table, rows []map[string]any) error {
	stream, err := tbl.InsertStream(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := stream.Write(ctx, row); err != nil {
			return err
		}
	}
	return stream.End()
}

func TestStressHeavyReadWrite(t *testing.T) {
	if !OptionEnabled("CLICKHOUSE_STRESS") {
		t.Skip("CLICKHOUSE_STRESS not set")
	}
	c := NewClient(t)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), StressDuration)
	defer cancel()

	tbl := CreateFoos(t, c)
	faker := gofakeit.New(0)
	var ids atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for gctx.Err() == nil {
		var rows []map[string]any
		if ids.Load() < StressMaxRows {
			rows = stressRows(faker, ids.Add(StressBatch)-StressBatch, StressBatch)
		}

		op := rand.IntN(4)
		g.Go(func() error {
			switch {
			case op == 0 && rows != nil:
				return tbl.InsertRows(gctx, rows)
			case op == 1 && rows != nil:
				return streamRows(gctx, tbl, rows)
			case op == 2:
				_, err := tbl.Count(gctx)
				return err
			default:
				_, err := tbl.Columns(gctx)
				return err
			}
		})
		time.Sleep(100 * time.Millisecond)
	}

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		require.NoError(t, err)
	}

	n, err := tbl.Count(context.Background())
	require.NoError(t, err)
	t.Logf("Ingested: %d", n)
	require.LessOrEqual(t, n, uint64(ids.Load()))
}

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
	"fmt"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"

	chhttp "github.com/chhttp/chhttp-sdk/go"
)

func TestQueryStream(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	stream, err := c.QueryStream(context.Background(), "SELECT toUInt8(number) AS n FROM system.numbers LIMIT 100000")
	require.NoError(t, err)

	var sum uint64
	require.NoError(t, stream.Each(func(row chhttp.Row) error {
		sum += row[0].(uint64)
		return nil
	}))
	require.Equal(t, uint64(100000), stream.Count())
	require.Equal(t, uint64(100000/256*(255*256/2)+(100000%256)*(100000%256-1)/2), sum)
}

func TestInsertStream(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	ctx := context.Background()
	tbl := CreateFoos(t, c)

	stream, err := tbl.InsertStream(ctx)
	require.NoError(t, err)
	const n = 50000
	for i := 0; i < n; i++ {
		require.NoError(t, stream.Write(ctx, map[string]any{"id": i, "bar": fmt.Sprintf("now %d", i)}))
	}
	require.NoError(t, stream.End())
	require.Equal(t, uint64(n), stream.Count())

	count, err := tbl.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(n), count)
}

func TestArrowRoundTrip(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	ctx := context.Background()
	tbl := CreateFoos(t, c)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "bar", Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.Uint32Builder).AppendValues([]uint32{1, 2}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"a", "b"}, nil)
	record := b.NewRecord()
	defer record.Release()

	require.NoError(t, tbl.InsertArrow(ctx, []arrow.Record{record}))

	records, err := c.QueryArrow(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY id", tbl.Identifier()), nil)
	require.NoError(t, err)
	defer func() {
		for _, r := range records {
			r.Release()
		}
	}()

	var ids []uint32
	for _, r := range records {
		ids = append(ids, r.Column(0).(*array.Uint32).Uint32Values()...)
	}
	require.Equal(t, []uint32{1, 2}, ids)
}

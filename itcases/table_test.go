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
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"
)

func TestTableSchema(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	tbl := CreateFoos(t, c)
	schema, err := tbl.Columns(context.Background())
	require.NoError(t, err)
	snaps.MatchSnapshot(t, schema)
}

func TestInsertRows(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	ctx := context.Background()
	tbl := CreateFoos(t, c)
	require.NoError(t, tbl.InsertRows(ctx, []map[string]any{
		{"id": 1, "bar": "foo", "ts": "2024-03-01T12:30:00.250Z"},
		{"id": 2, "bar": "foobar", "ts": "2024-03-01 12:31:00"},
		{"id": 3, "bar": "baz"},
	}))

	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	result, err := c.Query(ctx, `SELECT id, bar, ts FROM `+tbl.Identifier()+` WHERE bar LIKE {search:String} ORDER BY id`, map[string]any{
		"search": "%foo%",
	})
	require.NoError(t, err)
	snaps.MatchSnapshot(t, result.Meta)
	snaps.MatchSnapshot(t, result.Maps())
}

func TestTypedValues(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	result, err := c.Query(context.Background(), `
		SELECT
			toUInt64(18446744073709551615) AS u64,
			toInt8(-8) AS i8,
			toFloat64(inf) AS f,
			toNullable(NULL) AS n,
			[1, 2, 3] AS arr,
			map('a', 1) AS m,
			tuple(1, 'x') AS tup,
			toDate('2024-03-01') AS d,
			toDateTime('2024-03-01 12:30:00', 'Europe/Berlin') AS dt,
			{ids:Array(UInt32)} AS ids
	`, map[string]any{"ids": []int{4, 5}})
	require.NoError(t, err)
	require.Len(t, result.Data, 1)

	formatted := make(map[string]string, len(result.Meta))
	for i, col := range result.Meta {
		formatted[col.Name] = col.Format(result.Data[0][i])
	}
	snaps.MatchSnapshot(t, formatted)
}

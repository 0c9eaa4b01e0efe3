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
	"errors"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"

	chhttp "github.com/chhttp/chhttp-sdk/go"
)

func TestUnknownTable(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	_, err := c.Query(context.Background(), "SELECT * FROM this_table_does_not_exist", nil)
	var serverErr *chhttp.ServerError
	require.ErrorAs(t, err, &serverErr)
	snaps.MatchSnapshot(t, serverErr.StatusCode, serverErr.Code, serverErr.Name)
}

func TestSyntaxError(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	err := c.Exec(context.Background(), "SELEC 1")
	var serverErr *chhttp.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "SYNTAX_ERROR", serverErr.Name)
	require.Contains(t, serverErr.Message, "Syntax error")
}

func TestMissingParameter(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	_, err := c.Query(context.Background(), "SELECT {a:UInt8}", nil)
	var paramErr *chhttp.ParamError
	require.True(t, errors.As(err, &paramErr))
	snaps.MatchSnapshot(t, err.Error())
}

func TestExceptionMidStream(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	stream, err := c.QueryStream(context.Background(), `
		SELECT throwIf(number = 100000, 'boom') FROM system.numbers
		SETTINGS max_block_size = 1000
	`)
	require.NoError(t, err)
	defer stream.Close()

	for stream.Next() {
	}
	var serverErr *chhttp.ServerError
	require.ErrorAs(t, stream.Err(), &serverErr)
	require.Equal(t, "FUNCTION_THROW_IF_VALUE_IS_NON_ZERO", serverErr.Name)
	require.Positive(t, stream.Count())
}

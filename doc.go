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

/*
Package chhttp provides a lightweight client for the ClickHouse HTTP interface.

# Client

Use NewClient to create a client struct. This is the major entrance to construct structs for interacting with ClickHouse:

	client := chhttp.NewClient(&chhttp.Config{
		Endpoint: "http://localhost:8123/",
	})

# Query Data

Query runs a statement and returns the whole result. Named placeholders are
written as {name:Type} and take their values from the params map:

	result, err := client.Query(ctx, `SELECT * FROM foos WHERE bar LIKE {search:String}`, map[string]any{
		"search": "%foo%",
	})
	if err != nil {
		return err
	}
	fmt.Println(result.Columns(), len(result.Data))

QueryStream returns the rows as they arrive:

	stream, err := client.QueryStream(ctx, "SELECT number FROM system.numbers LIMIT 1000000")
	if err != nil {
		return err
	}
	defer stream.Close()
	for stream.Next() {
		_ = stream.Row()
	}
	return stream.Err()

# Write Data

Insert writes one row, InsertStream writes many rows over one request with
back-pressure, and Cable batches rows sent from many goroutines:

	stream, err := client.InsertStream(ctx, "foos")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := stream.Write(ctx, map[string]any{"bar": "now"}); err != nil {
			return err
		}
	}
	return stream.End()
*/
package chhttp

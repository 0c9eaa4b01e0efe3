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

package chhttp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"bar":"compressible"}`+"\n"), 100)

	for _, c := range []Compression{CompressionGzip, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			compressed, err := compressBytes(payload, c)
			require.NoError(t, err)
			require.Less(t, len(compressed), len(payload))

			body, err := decompressBody(io.NopCloser(bytes.NewReader(compressed)), string(c))
			require.NoError(t, err)
			defer body.Close()
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			require.Equal(t, payload, data)
		})
	}
}

func TestDecompressBody(t *testing.T) {
	for _, encoding := range []string{"", "identity", " Identity "} {
		body, err := decompressBody(io.NopCloser(bytes.NewReader([]byte("plain"))), encoding)
		require.NoError(t, err)
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		require.Equal(t, "plain", string(data))
	}

	body, err := decompressBody(io.NopCloser(bytes.NewReader(nil)), "gzip")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Empty(t, data)

	_, err = decompressBody(io.NopCloser(bytes.NewReader(nil)), "br")
	require.EqualError(t, err, `unsupported response encoding: "br"`)

	_, err = compressBytes(nil, Compression("lz4"))
	require.EqualError(t, err, `unsupported compression: "lz4"`)
}

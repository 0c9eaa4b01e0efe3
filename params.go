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
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	placeholderRe = regexp.MustCompile(`\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*:\s*([^{}]+?)\s*\}`)
	paramNameRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Placeholders returns the names of the {name:Type} placeholders in sql,
// in order of first appearance.
func Placeholders(sql string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(maskQuoted(sql), -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// maskQuoted blanks out string literals, quoted identifiers and comments so
// that braces inside them are not taken for placeholders.
func maskQuoted(sql string) string {
	b := []byte(sql)
	for i := 0; i < len(b); i++ {
		switch c := b[i]; {
		case c == '\'', c == '"', c == '`':
			j := i + 1
			for ; j < len(b); j++ {
				if b[j] == '\\' {
					b[j] = ' '
					if j+1 < len(b) {
						j++
						b[j] = ' '
					}
					continue
				}
				if b[j] == c {
					break
				}
				b[j] = ' '
			}
			i = j
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			j := i
			for ; j < len(b); j++ {
				if b[j] == '*' && j+1 < len(b) && b[j+1] == '/' {
					b[j], b[j+1] = ' ', ' '
					j++
					break
				}
				b[j] = ' '
			}
			i = j
		}
	}
	return string(b)
}

// bindParams renders params as param_<name> URL parameters. Every
// placeholder in sql must have a value.
func bindParams(q url.Values, sql string, params map[string]any) error {
	for _, name := range Placeholders(sql) {
		if _, ok := params[name]; !ok {
			return &ParamError{Name: name, Reason: "missing value"}
		}
	}

	for name, v := range params {
		if !paramNameRe.MatchString(name) {
			return &ParamError{Name: name, Reason: "invalid name"}
		}
		s, err := formatParam(v, false)
		if err != nil {
			return &ParamError{Name: name, Reason: err.Error()}
		}
		q.Set("param_"+name, s)
	}
	return nil
}

// formatParam renders v in the escaped text form the server expects for
// parameter values. Nested values (array elements, map entries) are rendered
// as literals, so strings get quoted.
func formatParam(v any, nested bool) (string, error) {
	switch v := v.(type) {
	case nil:
		if nested {
			return "NULL", nil
		}
		return `\N`, nil
	case string:
		return formatString(v, nested), nil
	case []byte:
		return formatString(string(v), nested), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case time.Time:
		return formatString(v.UTC().Format(dateTimeLayout), nested), nil
	case fmt.Stringer:
		return formatString(v.String(), nested), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, err := formatParam(rv.Index(i).Interface(), true)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	case reflect.Map:
		keys := rv.MapKeys()
		entries := make([]string, 0, len(keys))
		for _, k := range keys {
			ks, err := formatParam(k.Interface(), true)
			if err != nil {
				return "", err
			}
			vs, err := formatParam(rv.MapIndex(k).Interface(), true)
			if err != nil {
				return "", err
			}
			entries = append(entries, ks+":"+vs)
		}
		slices.Sort(entries)
		return "{" + strings.Join(entries, ",") + "}", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func formatString(s string, quoted bool) string {
	var b strings.Builder
	if quoted {
		b.WriteByte('\'')
	}
	for _, c := range s {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\'':
			if quoted {
				b.WriteString(`\'`)
			} else {
				b.WriteRune(c)
			}
		default:
			b.WriteRune(c)
		}
	}
	if quoted {
		b.WriteByte('\'')
	}
	return b.String()
}

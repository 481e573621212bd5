/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	headerCase = cases.Upper(language.English)
	statusCase = cases.Title(language.English)
)

// render prints v as JSON or YAML, or calls table for the table format
func (o *rootOptions) render(v interface{}, headers []string, rows [][]string) error {
	switch o.output {
	case outputJSON:
		enc := json.NewEncoder(o.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = o.out.Write(data)
		return err
	default:
		return o.printTable(headers, rows)
	}
}

func (o *rootOptions) printTable(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = headerCase.String(h)
	}
	fmt.Fprintln(w, strings.Join(upper, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// printFields prints key/value pairs in the table format, one per line
func (o *rootOptions) printFields(v interface{}, fields [][2]string) error {
	if o.output != outputTable {
		return o.render(v, nil, nil)
	}
	w := tabwriter.NewWriter(o.out, 0, 0, 1, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(w, "%s:\t%s\n", statusCase.String(f[0]), f[1])
	}
	return w.Flush()
}

func (o *rootOptions) printResult(res contracts.Result) error {
	if o.output != outputTable {
		return o.render(res, nil, nil)
	}
	fields := [][2]string{{"result", string(res.Status)}}
	for _, k := range sortedNames(res.Details) {
		fields = append(fields, [2]string{k, res.Details[k]})
	}
	return o.printFields(res, fields)
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

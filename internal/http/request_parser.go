// Package http provides the HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: filter query strings, pagination and JSON transaction payloads.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"moneta/internal/core"
)

// parseFilter builds a Filter from query parameters. Labels may be
// repeated (?tags=a&tags=b) or comma separated (?tags=a,b); malformed or
// partial range input degrades to the all-time range rather than erroring.
func parseFilter(query url.Values) core.Filter {
	return core.Filter{
		Categories: parseLabelParam(query, "categories"),
		Tags:       parseLabelParam(query, "tags"),
		Range: core.ParseTimeRange(
			query.Get("range"),
			query.Get("start"),
			query.Get("end"),
		),
	}
}

// parseLabelParam collects the values of a multi-valued label parameter,
// splitting comma-separated entries and normalizing the result.
func parseLabelParam(query url.Values, key string) []string {
	var raw []string
	for _, v := range query[key] {
		raw = append(raw, strings.Split(v, ",")...)
	}
	return core.NormalizeLabels(raw)
}

// parsePage reads the 1-based page parameter, defaulting to 1. Out-of-range
// values are clamped by the storage layer.
func parsePage(query url.Values) int {
	v := strings.TrimSpace(query.Get("page"))
	if v == "" {
		return 1
	}
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 {
		return 1
	}
	return p
}

// transactionPayload is the JSON body of transaction create/update
// requests. Amount accepts both a JSON number and a decimal string.
type transactionPayload struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Kind        string      `json:"kind"`
	Category    string      `json:"category"`
	Tags        []string    `json:"tags"`
}

// decodeTransaction reads and validates a transaction payload from the
// request body. The returned transaction carries no ID; handlers set it
// from the route where relevant.
func decodeTransaction(r *http.Request) (core.Transaction, error) {
	var p transactionPayload
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: malformed JSON body: %v", core.ErrValidation, err)
	}

	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Transaction{}, err
	}

	cents, err := core.ParseDecimalToCents(p.Amount.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	return core.Transaction{
		Date:        date,
		Description: sanitizeInput(p.Description),
		Amount:      core.Money{Cents: cents},
		Kind:        core.Kind(strings.ToLower(strings.TrimSpace(p.Kind))),
		Category:    p.Category,
		Tags:        p.Tags,
	}, nil
}

// labelPayload is the JSON body of taxonomy create/rename requests.
type labelPayload struct {
	Name string `json:"name"`
}

// mergePayload is the JSON body of merge requests; the source label comes
// from the route.
type mergePayload struct {
	Target string `json:"target"`
}

func decodeLabel(r *http.Request) (string, error) {
	var p labelPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return "", fmt.Errorf("%w: malformed JSON body: %v", core.ErrValidation, err)
	}
	return p.Name, nil
}

func decodeMergeTarget(r *http.Request) (string, error) {
	var p mergePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return "", fmt.Errorf("%w: malformed JSON body: %v", core.ErrValidation, err)
	}
	return p.Target, nil
}

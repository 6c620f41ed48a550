// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package catalogclient implements the rate-limited, cached, retrying
// fetcher of event metadata from an external earthquake catalog
// service (spec §4.1). The upstream speaks the USGS-style GeoJSON
// FeatureCollection contract described in §6.
package catalogclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/internal/resilience"
	"github.com/seismonet/quakewatch/pkg/lrucache"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Client fetches Catalog Events over HTTP, guarded by a ResilientCaller
// and backed by an in-memory cache consulted before the token bucket
// is charged.
type Client struct {
	baseURL string
	http    *http.Client
	caller  *resilience.Caller
	cache   *lrucache.Cache
	ttl     time.Duration
}

// New builds a Client. ttl is the cache entry lifetime; cacheBytes
// bounds the lrucache's memory estimate (see pkg/lrucache).
func New(baseURL string, cfg schema.ResilienceConfig, ttl time.Duration, cacheBytes int) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		caller:  resilience.New("catalog", cfg),
		cache:   lrucache.New(cacheBytes),
		ttl:     ttl,
	}
}

// Purge evicts every cached query result, per the "explicit purge"
// invalidation spec §4.1 requires.
func (c *Client) Purge() {
	// Keys holds the cache lock while it runs the callback, so the keys
	// are collected first and deleted after it returns.
	var keys []string
	c.cache.Keys(func(key string, _ interface{}) {
		keys = append(keys, key)
	})
	for _, key := range keys {
		c.cache.Del(key)
	}
}

type fetchEventsQuery struct {
	timeRange    schema.TimeRange
	bbox         *schema.BBox
	minMagnitude *float64
}

// canonicalKey sorts query fields into a stable cache key so equivalent
// requests (same filters, any field order) hit the same entry.
func (q fetchEventsQuery) canonicalKey() string {
	fields := []string{
		"start=" + q.timeRange.Start.UTC().Format(time.RFC3339Nano),
		"end=" + q.timeRange.End.UTC().Format(time.RFC3339Nano),
	}
	if q.bbox != nil {
		fields = append(fields,
			"minlat="+strconv.FormatFloat(q.bbox.MinLat, 'f', -1, 64),
			"maxlat="+strconv.FormatFloat(q.bbox.MaxLat, 'f', -1, 64),
			"minlon="+strconv.FormatFloat(q.bbox.MinLon, 'f', -1, 64),
			"maxlon="+strconv.FormatFloat(q.bbox.MaxLon, 'f', -1, 64),
		)
	}
	if q.minMagnitude != nil {
		fields = append(fields, "minmag="+strconv.FormatFloat(*q.minMagnitude, 'f', -1, 64))
	}
	sort.Strings(fields)
	key := "fetchEvents"
	for _, f := range fields {
		key += "|" + f
	}
	return key
}

// FetchEvents returns all catalog events matching the filters, deduplicated
// by catalog id and ordered by origin time ascending.
func (c *Client) FetchEvents(ctx context.Context, timeRange schema.TimeRange, bbox *schema.BBox, minMagnitude *float64) ([]schema.CatalogEvent, error) {
	const op = "catalogclient.FetchEvents"

	if timeRange.Empty() {
		return nil, errs.New(errs.Validation, op, "time range is empty", nil)
	}
	if bbox != nil && !bbox.Valid() {
		return nil, errs.New(errs.Validation, op, "bounding box is malformed", nil)
	}

	q := fetchEventsQuery{timeRange: timeRange, bbox: bbox, minMagnitude: minMagnitude}
	key := q.canonicalKey()

	if cached := c.cache.Get(key, nil); cached != nil {
		return cached.([]schema.CatalogEvent), nil
	}

	var events []schema.CatalogEvent
	err := c.caller.Do(ctx, op, func(ctx context.Context) error {
		fetched, err := c.doFetchEvents(ctx, q)
		if err != nil {
			return err
		}
		events = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Get(key, func() (interface{}, time.Duration, int) {
		return events, c.ttl, len(events) * 128
	})

	return events, nil
}

// FetchEvent returns a single catalog event by id, or an errs.Validation
// "not found" error if the upstream reports a 404.
func (c *Client) FetchEvent(ctx context.Context, id string) (schema.CatalogEvent, error) {
	const op = "catalogclient.FetchEvent"

	key := "fetchEvent|" + id
	if cached := c.cache.Get(key, nil); cached != nil {
		return cached.(schema.CatalogEvent), nil
	}

	var ev schema.CatalogEvent
	err := c.caller.Do(ctx, op, func(ctx context.Context) error {
		fetched, err := c.doFetchEvent(ctx, id)
		if err != nil {
			return err
		}
		ev = fetched
		return nil
	})
	if err != nil {
		return schema.CatalogEvent{}, err
	}

	c.cache.Get(key, func() (interface{}, time.Duration, int) {
		return ev, c.ttl, 128
	})

	return ev, nil
}

// geoJSONFeatureCollection mirrors the subset of the USGS-style GeoJSON
// contract described in spec §6 that the client cares about.
type geoJSONFeatureCollection struct {
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Time    int64   `json:"time"`
		Mag     float64 `json:"mag"`
		MagType string  `json:"magType"`
		Net     string  `json:"net"`
	} `json:"properties"`
	Geometry struct {
		Coordinates [3]float64 `json:"coordinates"`
	} `json:"geometry"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doFetchEvents(ctx context.Context, q fetchEventsQuery) ([]schema.CatalogEvent, error) {
	const op = "catalogclient.doFetchEvents"

	url := fmt.Sprintf("%s/query?format=geojson&starttime=%s&endtime=%s",
		c.baseURL,
		q.timeRange.Start.UTC().Format(time.RFC3339),
		q.timeRange.End.UTC().Format(time.RFC3339))
	if q.bbox != nil {
		url += fmt.Sprintf("&minlatitude=%g&maxlatitude=%g&minlongitude=%g&maxlongitude=%g",
			q.bbox.MinLat, q.bbox.MaxLat, q.bbox.MinLon, q.bbox.MaxLon)
	}
	if q.minMagnitude != nil {
		url += fmt.Sprintf("&minmagnitude=%g", *q.minMagnitude)
	}

	body, err := c.get(ctx, op, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var fc geoJSONFeatureCollection
	if err := json.NewDecoder(body).Decode(&fc); err != nil {
		return nil, errs.New(errs.Transient, op, "failed to decode GeoJSON response", err)
	}

	seen := make(map[string]bool, len(fc.Features))
	events := make([]schema.CatalogEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		events = append(events, toCatalogEvent(f))
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].OriginTime.Before(events[j].OriginTime)
	})

	return events, nil
}

func (c *Client) doFetchEvent(ctx context.Context, id string) (schema.CatalogEvent, error) {
	const op = "catalogclient.doFetchEvent"

	url := fmt.Sprintf("%s/detail/%s.geojson", c.baseURL, id)
	body, err := c.get(ctx, op, url)
	if err != nil {
		return schema.CatalogEvent{}, err
	}
	defer body.Close()

	var f geoJSONFeature
	if err := json.NewDecoder(body).Decode(&f); err != nil {
		return schema.CatalogEvent{}, errs.New(errs.Transient, op, "failed to decode GeoJSON response", err)
	}
	return toCatalogEvent(f), nil
}

// get performs the HTTP round-trip and classifies the response into the
// taxonomy spec §4.1/§7 require: 429 is RateLimited, returned after
// waiting out a Retry-After given in seconds (or until ctx ends), 5xx
// is Transient (retryable), other 4xx is Validation (not retried).
func (c *Client) get(ctx context.Context, op, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.Internal, op, "failed to build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.New(errs.Transient, op, "http request failed", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}
	defer resp.Body.Close()

	var apiErr apiError
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			select {
			case <-time.After(time.Duration(secs) * time.Second):
			case <-ctx.Done():
			}
		}
		return nil, errs.New(errs.RateLimited, op, "upstream rate limited: "+apiErr.Message, nil)
	case resp.StatusCode >= 500:
		return nil, errs.New(errs.Transient, op, fmt.Sprintf("upstream 5xx: %s", apiErr.Message), nil)
	default:
		return nil, errs.New(errs.Validation, op, fmt.Sprintf("upstream %d: %s", resp.StatusCode, apiErr.Message), nil)
	}
}

func toCatalogEvent(f geoJSONFeature) schema.CatalogEvent {
	scale := magTypeToScale(f.Properties.MagType)
	return schema.CatalogEvent{
		ID:         f.ID,
		OriginTime: time.UnixMilli(f.Properties.Time).UTC(),
		Hypocenter: schema.Hypocenter{
			Longitude: f.Geometry.Coordinates[0],
			Latitude:  f.Geometry.Coordinates[1],
			DepthKm:   f.Geometry.Coordinates[2],
		},
		Magnitude: schema.Magnitude{
			Value: f.Properties.Mag,
			Scale: scale,
		},
		Agency: f.Properties.Net,
	}
}

func magTypeToScale(magType string) schema.MagnitudeScale {
	switch magType {
	case "mw", "Mw", "MW":
		return schema.ScaleMw
	case "ms", "Ms", "MS":
		return schema.ScaleMs
	case "mb", "Mb", "MB":
		return schema.ScaleMb
	default:
		return schema.ScaleMl
	}
}

// Package cache is the short-TTL mirror of hot read paths. The store stays
// authoritative: every failure here degrades to a store read.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var ErrMiss = errors.New("cache: miss")

// Cache is the key/value contract both backends satisfy.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

const (
	ActiveEmergenciesTTL = 60 * time.Second
	ProductionStatusTTL  = 300 * time.Second
	TeamStatsTTL         = 60 * time.Second
	EmergencyStatsTTL    = 600 * time.Second
	TemplateStatsTTL     = 600 * time.Second
	RealtimeMetricsTTL   = 30 * time.Second
)

func ActiveEmergenciesKey(tournamentID string) string {
	return "active_emergencies:" + tournamentID
}

func ProductionStatusKey(tournamentID string) string {
	return "production_status:" + tournamentID
}

func TeamStatsKey(tournamentID string) string {
	return "team_stats:" + tournamentID
}

func EmergencyStatsKey(tournamentID string, days int) string {
	return "emergency_stats:" + tournamentID + ":" + strconv.Itoa(days) + "days"
}

func EmergencyStatsPattern(tournamentID string) string {
	return "emergency_stats:" + tournamentID + ":*"
}

func TemplateStatsKey(tournamentID, date string) string {
	return "template_stats:" + tournamentID + ":" + date
}

func TemplateStatsPattern(tournamentID string) string {
	return "template_stats:" + tournamentID + ":*"
}

func RealtimeMetricsKey(tournamentID string) string {
	return "realtime_metrics:" + tournamentID
}

// Package policy holds the static feature policy: which subscription
// statuses unlock which feature, and the free-tier quotas for the two
// metered features.
package policy

import (
	"fmt"

	"github.com/qs3c/bravo_premium_server/internal/model"
)

// Feature is a closed set of gated features.
type Feature int

const (
	FeatureUnknown Feature = iota
	FeatureNoAds
	FeatureUnlimitedDrills
	FeatureUnlimitedCustomDrills
	FeatureUnlimitedSessions
	FeatureAdvancedAnalytics
	FeatureBasicDrills
	FeatureWeeklySummaries
	FeatureMonthlySummaries
)

var featureNames = map[Feature]string{
	FeatureNoAds:                 "noAds",
	FeatureUnlimitedDrills:       "unlimitedDrills",
	FeatureUnlimitedCustomDrills: "unlimitedCustomDrills",
	FeatureUnlimitedSessions:     "unlimitedSessions",
	FeatureAdvancedAnalytics:     "advancedAnalytics",
	FeatureBasicDrills:           "basicDrills",
	FeatureWeeklySummaries:       "weeklySummaries",
	FeatureMonthlySummaries:      "monthlySummaries",
}

var featuresByName = func() map[string]Feature {
	m := make(map[string]Feature, len(featureNames))
	for f, name := range featureNames {
		m[name] = f
	}
	return m
}()

// All lists every known feature in a stable order.
var All = []Feature{
	FeatureNoAds,
	FeatureUnlimitedDrills,
	FeatureUnlimitedCustomDrills,
	FeatureUnlimitedSessions,
	FeatureAdvancedAnalytics,
	FeatureBasicDrills,
	FeatureWeeklySummaries,
	FeatureMonthlySummaries,
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return "unknown"
}

// Parse maps a client-supplied feature name to a Feature. Unrecognised
// names yield FeatureUnknown, which no status can access.
func Parse(name string) Feature {
	return featuresByName[name]
}

type statusSet map[model.Status]struct{}

func setOf(statuses ...model.Status) statusSet {
	s := make(statusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

var paid = setOf(model.StatusPremium, model.StatusTrial)

var grants = map[Feature]statusSet{
	FeatureNoAds:                 paid,
	FeatureUnlimitedDrills:       paid,
	FeatureUnlimitedCustomDrills: paid,
	FeatureUnlimitedSessions:     paid,
	FeatureAdvancedAnalytics:     paid,
	FeatureBasicDrills:           setOf(model.StatusFree, model.StatusPremium, model.StatusTrial, model.StatusExpired),
	FeatureWeeklySummaries:       setOf(model.StatusFree, model.StatusPremium, model.StatusTrial),
	FeatureMonthlySummaries:      setOf(model.StatusFree, model.StatusPremium, model.StatusTrial),
}

// Known reports whether the feature exists in the policy.
func Known(f Feature) bool {
	_, ok := grants[f]
	return ok
}

// Grants reports whether status unconditionally unlocks f.
func Grants(f Feature, status model.Status) bool {
	set, ok := grants[f]
	if !ok {
		return false
	}
	_, ok = set[status]
	return ok
}

// FeaturesFor returns the names of all features status unlocks.
func FeaturesFor(status model.Status) []string {
	out := make([]string, 0, len(All))
	for _, f := range All {
		if Grants(f, status) {
			out = append(out, f.String())
		}
	}
	return out
}

// Period is the calendar window a quota is counted over.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Quota is a free-tier usage ceiling.
type Quota struct {
	Limit  int
	Period Period
}

// Describe renders the quota the way clients display it, e.g. "3 per month".
func (q Quota) Describe() string {
	return fmt.Sprintf("%d per %s", q.Limit, q.Period)
}

const (
	CustomDrillsPerMonth = 3
	SessionsPerDay       = 1
)

var quotas = map[Feature]Quota{
	FeatureUnlimitedCustomDrills: {Limit: CustomDrillsPerMonth, Period: PeriodMonth},
	FeatureUnlimitedSessions:     {Limit: SessionsPerDay, Period: PeriodDay},
}

// QuotaFor returns the free-tier quota for f, if it has one.
func QuotaFor(f Feature) (Quota, bool) {
	q, ok := quotas[f]
	return q, ok
}

// Limit tags returned to clients when access is decided without a quota.
const (
	LimitUnlimited    = "unlimited"
	LimitNotAvailable = "not_available"
	LimitPremiumOnly  = "premium_only"
)

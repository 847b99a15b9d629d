package internaldefs

import (
	"strconv"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// Namespace prefixes every exported series.
const Namespace = "gosession"

// BucketCount is the number of latency buckets including +Inf.
const BucketCount = len(goSession.HistogramBounds) + 1

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

var counterHelp = map[goSession.MetricID]string{
	goSession.MetricLoginSuccess:           "Successful logins.",
	goSession.MetricLoginFailure:           "Failed logins.",
	goSession.MetricRefreshSuccess:         "Successful refresh token rotations.",
	goSession.MetricRefreshFailure:         "Rejected refresh attempts.",
	goSession.MetricRefreshReuseDetected:   "Retired refresh tokens presented again.",
	goSession.MetricSiblingSessionsRevoked: "Sessions retired because a sibling token was reused.",
	goSession.MetricRefreshContended:       "Refresh or logout attempts that lost the per-token lock.",
	goSession.MetricSessionCreated:         "Sessions created by login.",
	goSession.MetricSessionRotated:         "Sessions rotated by refresh.",
	goSession.MetricLogout:                 "Successful logouts.",
	goSession.MetricLogoutFailure:          "Rejected logouts.",
	goSession.MetricRegisterSuccess:        "Registered users.",
	goSession.MetricRegisterDuplicate:      "Registrations rejected as duplicate.",
	goSession.MetricRegisterFailure:        "Registrations failed for other reasons.",
	goSession.MetricTokenExpired:           "Tokens rejected as expired.",
	goSession.MetricTokenMalformed:         "Tokens rejected as malformed or badly signed.",
	goSession.MetricTokenUntrusted:         "Tokens rejected for other verification failures.",
	goSession.MetricStoreFailure:           "Session store or user directory failures.",
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = buildCounterDefs()

// HistogramDefs lists every exported latency histogram in MetricID order.
var HistogramDefs = buildHistogramDefs()

// AuditDroppedName is the counter name for dispatcher drops.
const AuditDroppedName = Namespace + "_audit_dropped_total"

func buildCounterDefs() []CounterDef {
	var out []CounterDef
	for _, id := range goSession.MetricIDs() {
		if id.IsLatency() {
			continue
		}
		out = append(out, CounterDef{
			ID:   id,
			Name: Namespace + "_" + id.String() + "_total",
			Help: counterHelp[id],
		})
	}
	return out
}

func buildHistogramDefs() []HistogramDef {
	var out []HistogramDef
	for _, id := range goSession.MetricIDs() {
		if !id.IsLatency() {
			continue
		}
		base := strings.TrimSuffix(id.String(), "_latency")
		out = append(out, HistogramDef{
			ID:   id,
			Name: Namespace + "_" + base + "_latency_seconds",
			Help: "Latency of " + base + " operations.",
		})
	}
	return out
}

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(goSession.HistogramBounds))
	for i, b := range goSession.HistogramBounds {
		out[i] = b.Seconds()
	}
	return out
}

// BoundSuffixes returns name-safe labels for every bucket, "inf" last.
func BoundSuffixes() []string {
	out := make([]string, 0, BucketCount)
	for _, s := range UpperBoundsSeconds() {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(s, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

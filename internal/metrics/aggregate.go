package metrics

import (
	"math"
	"time"

	"github.com/loadbreaker/loadbreaker/internal/shared"
)

// AuxAggregate is the geometric mean of one named auxiliary metric across
// every instance of an entry that reported it (§4.5 "auxiliary metrics
// combine via geometric mean, since most are throughput ratios").
type AuxAggregate struct {
	Description string
	GeoMean     float64
	Samples     int
}

// Aggregate summarises one run-plan entry's completed instances (§4.5,
// §6.4 report "stressor results").
type Aggregate struct {
	Name               string
	InstancesRequested int
	InstancesCompleted int
	CounterTotal       uint64
	WallMean           time.Duration // r_total: (Σ duration) / completed_instances (§4.5)
	UserTime           time.Duration
	SystemTime         time.Duration
	MaxRSSKB           int64
	BogoOpsPerSecReal  float64 // c_total / r_total
	BogoOpsPerSecCPU   float64 // c_total / (u+s)
	CPUUsagePercent    float64 // 100 * (u+s) / r_total / completed_instances
	Aux                []AuxAggregate
	ChecksumOK         bool
	Suspicious         bool
}

// suspiciousMinDuration is the floor past which a zero counter total
// across every instance is flagged rather than silently reported as a
// legitimate zero (§4.5 "near-zero throughput over a run longer than a
// few seconds should be flagged, not silently reported").
const suspiciousMinDuration = 30 * time.Second

// Compute builds the Aggregate for one entry from its instances' final
// stats/checksum records. checksums may be nil when integrity checking is
// disabled for this stressor (VerifyNone, §3).
func Compute(name string, requested int, stats []shared.StatsRecord, checksums []shared.ChecksumRecord) Aggregate {
	agg := Aggregate{Name: name, InstancesRequested: requested, ChecksumOK: true}

	auxSums := map[string][]float64{}
	auxOrder := []string{}

	var wallSum, wallMax time.Duration
	for i := range stats {
		s := &stats[i]
		if s.Completed == 0 {
			continue
		}
		agg.InstancesCompleted++
		agg.CounterTotal += s.CounterTotal
		agg.UserTime += time.Duration(s.UtimeTotalNano)
		agg.SystemTime += time.Duration(s.StimeTotalNano)
		if kb := s.MaxRSSKB; kb > agg.MaxRSSKB {
			agg.MaxRSSKB = kb
		}
		if d := time.Duration(s.DurTotalNano); d > 0 {
			wallSum += d
			if d > wallMax {
				wallMax = d
			}
		}

		for j := 0; j < int(s.AuxCount) && j < shared.MaxAuxMetrics; j++ {
			desc := s.Aux[j].DescString()
			if _, seen := auxSums[desc]; !seen {
				auxOrder = append(auxOrder, desc)
			}
			auxSums[desc] = append(auxSums[desc], s.Aux[j].Value)
		}

		if checksums != nil && i < len(checksums) {
			if !Verify(s, &checksums[i]) {
				agg.ChecksumOK = false
			}
		}
	}

	// r_total = (Σ duration) / completed_instances (§4.5 arithmetic mean,
	// not the slowest instance's duration).
	if agg.InstancesCompleted > 0 {
		agg.WallMean = wallSum / time.Duration(agg.InstancesCompleted)
	}

	if agg.WallMean > 0 {
		agg.BogoOpsPerSecReal = float64(agg.CounterTotal) / agg.WallMean.Seconds()
		cpuSeconds := (agg.UserTime + agg.SystemTime).Seconds()
		agg.CPUUsagePercent = 100 * cpuSeconds / agg.WallMean.Seconds() / float64(agg.InstancesCompleted)
	}
	if cpu := (agg.UserTime + agg.SystemTime).Seconds(); cpu > 0 {
		agg.BogoOpsPerSecCPU = float64(agg.CounterTotal) / cpu
	}

	for _, desc := range auxOrder {
		vals := auxSums[desc]
		agg.Aux = append(agg.Aux, AuxAggregate{
			Description: desc,
			GeoMean:     geometricMean(vals),
			Samples:     len(vals),
		})
	}

	// Suspicious zero-throughput detection uses the longest-running
	// instance, i.e. the run's actual wall-clock span, not r_total (whose
	// arithmetic-mean denominator would understate an uneven run).
	if agg.InstancesCompleted > 0 && agg.CounterTotal == 0 && wallMax >= suspiciousMinDuration {
		agg.Suspicious = true
	}
	return agg
}

// geometricMean decomposes each value into mantissa*2^exponent before
// multiplying, which is how large throughput samples avoid overflowing a
// float64 product when combined over many instances (§4.5).
func geometricMean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	logSum := 0.0
	n := 0
	for _, v := range vals {
		if v <= 0 {
			continue
		}
		mantissa, exp := math.Frexp(v)
		logSum += math.Log(mantissa) + float64(exp)*math.Ln2
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Exp(logSum / float64(n))
}

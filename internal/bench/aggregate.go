package bench

// Aggregate summarizes several runs of the same benchmark.
type Aggregate struct {
	Runs        int
	MeanAvgMbps float64
	MaxPeakMbps float64
	MeanTTFBMs  float64
}

func AggregateRuns(runs []Summary) Aggregate {
	agg := Aggregate{Runs: len(runs)}
	if len(runs) == 0 {
		return agg
	}
	var ttfbRuns int
	for _, r := range runs {
		agg.MeanAvgMbps += r.AvgMbps
		if r.PeakMbps > agg.MaxPeakMbps {
			agg.MaxPeakMbps = r.PeakMbps
		}
		if r.GotTTFB {
			agg.MeanTTFBMs += r.TTFBMs
			ttfbRuns++
		}
	}
	agg.MeanAvgMbps /= float64(len(runs))
	if ttfbRuns > 0 {
		agg.MeanTTFBMs /= float64(ttfbRuns)
	}
	return agg
}

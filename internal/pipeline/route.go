package pipeline

// Branch is the ROUTE decision.
type Branch int

const (
	BranchNews Branch = iota
	BranchDeepZoneScan
)

func (b Branch) String() string {
	if b == BranchDeepZoneScan {
		return string(StageDeepZoneScan)
	}
	return string(StageNews)
}

// Next is the stage the branch leads to.
func (b Branch) Next() Stage {
	if b == BranchDeepZoneScan {
		return StageDeepZoneScan
	}
	return StageNews
}

// Route sends low-volatility markets (ATR14/close below threshold) through
// DEEP_ZONE_SCAN. Without a usable ATR it goes straight to NEWS.
func Route(ta *TASection, threshold float64) Branch {
	if ta == nil || ta.Snapshot == nil {
		return BranchNews
	}
	r := ta.Snapshot.VolatilityRatio()
	if r > 0 && r < threshold {
		return BranchDeepZoneScan
	}
	return BranchNews
}

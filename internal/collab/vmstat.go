package collab

// NewVMStat samples /proc/vmstat's page-fault and swap counters around a
// run (§5 vmstat collaborator): pgfault, pgmajfault, pswpin, pswpout,
// pgsteal_kswapd, pgscan_kswapd.
func NewVMStat() Adapter {
	wanted := map[string]bool{
		"pgfault": true, "pgmajfault": true, "pswpin": true, "pswpout": true,
		"pgsteal_kswapd": true, "pgscan_kswapd": true,
	}
	return &snapshotAdapter{
		name: "vmstat",
		path: "/proc/vmstat",
		parse: func(data []byte) (map[string]float64, error) {
			return parseFieldInts(data, wanted)
		},
	}
}

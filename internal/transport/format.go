package transport

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count with binary units, e.g. "100 MiB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// FormatMbps renders a throughput figure.
func FormatMbps(mbps float64) string {
	if mbps <= 0 {
		return "0.000 Mbps"
	}
	return fmt.Sprintf("%.3f Mbps", mbps)
}

package ta

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/preet1249/AI-Trading-ML/internal/buffer"
)

// Fingerprint hashes the inputs that determine a snapshot: the symbol, the
// timeframe set in order, and for every buffer its length, stale flag and
// newest closed candle. Any new closed candle changes the result.
func Fingerprint(symbol string, views []buffer.View) string {
	d := xxhash.New()
	var scratch [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:], v)
		d.Write(scratch[:])
	}

	d.WriteString(symbol)
	d.Write([]byte{0})
	for _, v := range views {
		d.WriteString(string(v.Key.Timeframe))
		d.Write([]byte{0})
		putU64(uint64(len(v.Candles)))
		if v.Stale {
			d.Write([]byte{1})
		} else {
			d.Write([]byte{0})
		}
		if last, ok := v.Last(); ok {
			putU64(uint64(last.OpenTime.UnixNano()))
			putU64(math.Float64bits(last.Close))
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a bar period in seconds.
type Timeframe int32

const (
	M1  Timeframe = 60
	M5  Timeframe = 300
	M15 Timeframe = 900
	M30 Timeframe = 1800
	H1  Timeframe = 3600
	H4  Timeframe = 14400
	D1  Timeframe = 86400
	W1  Timeframe = 604800
)

// Supported lists every timeframe Resample can produce, finest
// first.
var Supported = []Timeframe{M1, M5, M15, M30, H1, H4, D1, W1}

// weekAnchor puts W1 buckets on Sunday 00:00 UTC; the Unix epoch fell on a
// Thursday.
const weekAnchor = 3 * 24 * 60 * 60

// ParseTimeframe accepts the usual broker labels (M1, M15, H1, ...).
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M1":
		return M1, nil
	case "M5":
		return M5, nil
	case "M15":
		return M15, nil
	case "M30":
		return M30, nil
	case "H1":
		return H1, nil
	case "H4":
		return H4, nil
	case "D1":
		return D1, nil
	case "W1":
		return W1, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe string: %s", s)
	}
}

func (tf Timeframe) String() string {
	sec := int32(tf)
	switch {
	case sec <= 0:
		return fmt.Sprintf("TF(%d)", sec)
	case sec < 3600 && sec%60 == 0:
		return fmt.Sprintf("M%d", sec/60)
	case sec < 86400 && sec%3600 == 0:
		return fmt.Sprintf("H%d", sec/3600)
	case sec == 604800:
		return "W1"
	case sec%86400 == 0:
		return fmt.Sprintf("D%d", sec/86400)
	}
	return fmt.Sprintf("%ds", sec)
}

// Duration returns the bar period.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Second
}

// Minutes returns the bar period in whole minutes.
func (tf Timeframe) Minutes() int {
	return int(tf) / 60
}

// Valid reports whether tf is a positive whole number of minutes.
func (tf Timeframe) Valid() bool {
	return tf > 0 && tf%60 == 0
}

// IsSupported reports whether tf is one of the Supported constants.
func (tf Timeframe) IsSupported() bool {
	for _, s := range Supported {
		if tf == s {
			return true
		}
	}
	return false
}

// BucketStart returns the open time of the tf bar containing t. Intraday and
// daily bars are aligned to the Unix epoch, weekly bars start on Sunday.
func (tf Timeframe) BucketStart(t time.Time) time.Time {
	size := int64(tf)
	var off int64
	if tf == W1 {
		off = weekAnchor
	}
	u := t.Unix() - off
	b := u / size * size
	if u < 0 && b != u {
		b -= size
	}
	return time.Unix(b+off, 0).UTC()
}

// MarshalText renders the label form so configs and reports stay readable.
func (tf Timeframe) MarshalText() ([]byte, error) {
	return []byte(tf.String()), nil
}

func (tf *Timeframe) UnmarshalText(b []byte) error {
	v, err := ParseTimeframe(string(b))
	if err != nil {
		return err
	}
	*tf = v
	return nil
}

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haidl/tvstream/errs"
)

func TestIntervalValid(t *testing.T) {
	valid := []string{"1", "15", "1440", "1S", "60S", "1H", "168H", "D", "1D", "365D", "W", "52W", "M", "12M"}
	for _, s := range valid {
		assert.NoError(t, Interval(s), s)
	}
}

func TestIntervalOutOfRange(t *testing.T) {
	invalid := []string{"0", "1441", "0S", "61S", "0H", "169H", "0D", "366D", "0W", "53W", "0M", "13M"}
	for _, s := range invalid {
		err := Interval(s)
		if assert.Error(t, err, s) {
			assert.ErrorIs(t, err, errs.Sentinel(errs.KindInvalidInterval))
		}
	}
}

func TestIntervalMalformed(t *testing.T) {
	invalid := []string{"", "abc", "1X", "-1", "1.5", "S", "H"}
	for _, s := range invalid {
		assert.Error(t, Interval(s), s)
	}
}

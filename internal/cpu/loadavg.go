package cpu

import (
	"codeberg.org/mutker/tomography/internal/errors"
	"github.com/mackerelio/go-osstat/loadavg"
)

// LoadAverage is the run queue length averaged over 1, 5 and 15 minutes.
type LoadAverage struct {
	One     float64
	Five    float64
	Fifteen float64
}

var readLoadAvg = loadavg.Get

// Average reads the system load average.
func Average() (LoadAverage, error) {
	st, err := readLoadAvg()
	if err != nil {
		return LoadAverage{}, errors.New().Wrap(errors.ErrLoadAverage, err)
	}

	return LoadAverage{
		One:     st.Loadavg1,
		Five:    st.Loadavg5,
		Fifteen: st.Loadavg15,
	}, nil
}

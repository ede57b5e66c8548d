package jobrunner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/jobrunner"
)

func TestProgress_ReportChars_MapsToSpecCurve(t *testing.T) {
	var flushed []int
	p := jobrunner.NewProgressForTest(0, func(pct int) { flushed = append(flushed, pct) })

	p.ReportChars(0, 100)   // 20
	p.ReportChars(50, 100)  // 20 + 75*0.5 = 57
	p.ReportChars(100, 100) // 95
	p.ReportChars(200, 100) // clamped to 95, no new flush

	require.Equal(t, []int{20, 57, 95}, flushed)
}

func TestProgress_Report_OnlyFlushesOnChange(t *testing.T) {
	var flushed []int
	p := jobrunner.NewProgressForTest(10, func(pct int) { flushed = append(flushed, pct) })

	p.ReportForTest(10)
	p.ReportForTest(10)
	p.ReportForTest(11)

	require.Equal(t, []int{11}, flushed)
}

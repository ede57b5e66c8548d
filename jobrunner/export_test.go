package jobrunner

// NewProgressForTest and ReportForTest expose Progress's unexported
// constructor and report method to the external jobrunner_test package.
func NewProgressForTest(initial int, flush func(int)) *Progress {
	return newProgress(initial, flush)
}

func (p *Progress) ReportForTest(percent int) {
	p.report(percent)
}

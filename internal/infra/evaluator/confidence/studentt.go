package confidence

// studentTTable holds the two-tailed t_{0.025,df} critical value for
// df = 1..30, covering the alpha = 0.05 prediction interval this
// evaluator is fixed to. Beyond df=30 the distribution is close enough
// to normal that the 1.96 asymptote is used instead.
var studentTTable = [30]float64{
	12.706, 4.303, 3.182, 2.776, 2.571,
	2.447, 2.365, 2.306, 2.262, 2.228,
	2.201, 2.179, 2.160, 2.145, 2.131,
	2.120, 2.110, 2.101, 2.093, 2.086,
	2.080, 2.074, 2.069, 2.064, 2.060,
	2.056, 2.052, 2.048, 2.045, 2.042,
}

// studentTAsymptote is the t critical value's limit as df -> infinity,
// equal to the standard normal's 0.025 upper-tail quantile.
const studentTAsymptote = 1.96

// studentT returns the two-tailed 95% critical value for df degrees of
// freedom.
func studentT(df int) float64 {
	if df < 1 {
		return studentTAsymptote
	}
	if df <= len(studentTTable) {
		return studentTTable[df-1]
	}
	return studentTAsymptote
}

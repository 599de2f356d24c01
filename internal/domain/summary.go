package domain

import "math"

// Summary describes the finite values of a variable's horizontal plane.
type Summary struct {
	Rows    int
	Cols    int
	Count   int // Finite values.
	Missing int // NaN or infinite values.
	Min     float64
	Max     float64
	Mean    float64
}

// Summarize computes min, max and mean over the finite values of variable
// name. With no finite values Min, Max and Mean are NaN.
func Summarize(ds *Dataset, name string) (*Summary, error) {
	plane, err := ds.Plane(name)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Rows: len(plane.Lat),
		Cols: len(plane.Lon),
		Min:  math.Inf(1),
		Max:  math.Inf(-1),
	}
	var sum float64
	for _, row := range plane.Values {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				s.Missing++
				continue
			}
			s.Count++
			sum += v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
	}

	if s.Count == 0 {
		s.Min, s.Max, s.Mean = math.NaN(), math.NaN(), math.NaN()
		return s, nil
	}
	s.Mean = sum / float64(s.Count)
	return s, nil
}

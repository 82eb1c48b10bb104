package geom

// Smoothstep maps a linear fraction t in [0,1] to t²(3−2t).
// Inputs outside [0,1] are clamped.
func Smoothstep(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	return t * t * (3 - 2*t)
}

// Lerp returns the point at fraction f of the way from start to target.
// f == 1 returns target exactly so flights land on the requested point.
func Lerp(start, target Vec3, f float64) Vec3 {
	if f >= 1 {
		return target
	}
	return start.Add(target.Sub(start).Scale(f))
}

// PathPoint returns the eased position for step i of a path divided into steps intervals.
//
// Precondition: steps >= 1; 0 <= i <= steps.
func PathPoint(start, target Vec3, i, steps int) Vec3 {
	return Lerp(start, target, Smoothstep(float64(i)/float64(steps)))
}

// Path returns all steps+1 eased positions from start to target inclusive.
//
// Precondition: steps >= 1.
// Postcondition: len(result) == steps+1; result[0] == start; result[steps] == target.
func Path(start, target Vec3, steps int) []Vec3 {
	out := make([]Vec3, 0, steps+1)
	for i := 0; i <= steps; i++ {
		out = append(out, PathPoint(start, target, i, steps))
	}
	return out
}

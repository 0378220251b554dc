package pointcloud

import "fmt"

// Cloud is an ordered sequence of points with optional parallel sequences of
// normals and intensities. If Normals is non-nil it must have the same
// length as Points; Intensities follows the same rule.
type Cloud struct {
	Points      []Point
	Normals     []Point
	Intensities []float64
}

// New creates a Cloud from a slice of points with no normals or intensities.
func New(points []Point) *Cloud {
	return &Cloud{Points: points}
}

// Len returns the number of points in the cloud.
func (c *Cloud) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Points)
}

// HasNormals reports whether the cloud carries a normal for every point.
func (c *Cloud) HasNormals() bool {
	return c != nil && len(c.Normals) == len(c.Points) && len(c.Normals) > 0
}

// Validate checks the invariants from the data model: normals (if present)
// and intensities (if present) must match the point count.
func (c *Cloud) Validate() error {
	if c == nil {
		return fmt.Errorf("pointcloud: nil cloud")
	}
	if len(c.Normals) != 0 && len(c.Normals) != len(c.Points) {
		return fmt.Errorf("pointcloud: %d normals for %d points", len(c.Normals), len(c.Points))
	}
	if len(c.Intensities) != 0 && len(c.Intensities) != len(c.Points) {
		return fmt.Errorf("pointcloud: %d intensities for %d points", len(c.Intensities), len(c.Points))
	}
	return nil
}

// Clone returns a deep copy of the cloud. Fine-registration algorithms hold
// their own transformed copy of the source cloud exclusively; Clone is how
// that copy is obtained.
func (c *Cloud) Clone() *Cloud {
	if c == nil {
		return nil
	}
	out := &Cloud{Points: make([]Point, len(c.Points))}
	copy(out.Points, c.Points)
	if len(c.Normals) > 0 {
		out.Normals = make([]Point, len(c.Normals))
		copy(out.Normals, c.Normals)
	}
	if len(c.Intensities) > 0 {
		out.Intensities = make([]float64, len(c.Intensities))
		copy(out.Intensities, c.Intensities)
	}
	return out
}

// Transformed returns a new cloud with every point mapped through t. Normals
// are rotated (not translated) so they remain unit vectors.
func (c *Cloud) Transformed(t Transform) *Cloud {
	out := &Cloud{Points: make([]Point, len(c.Points))}
	for i, p := range c.Points {
		out.Points[i] = t.Apply(p)
	}
	if c.HasNormals() {
		out.Normals = make([]Point, len(c.Normals))
		for i, n := range c.Normals {
			out.Normals[i] = t.ApplyRotation(n)
		}
	}
	if len(c.Intensities) > 0 {
		out.Intensities = append([]float64(nil), c.Intensities...)
	}
	return out
}

// Gather returns the sub-cloud selected by indices, in the given order.
func (c *Cloud) Gather(indices []uint32) *Cloud {
	out := &Cloud{Points: make([]Point, len(indices))}
	hasNormals := c.HasNormals()
	if hasNormals {
		out.Normals = make([]Point, len(indices))
	}
	for i, idx := range indices {
		out.Points[i] = c.Points[idx]
		if hasNormals {
			out.Normals[i] = c.Normals[idx]
		}
	}
	return out
}

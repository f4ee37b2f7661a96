package transform

const (
	inverseMaxIterations = 20
	inverseTolerance     = 1e-10
)

// InverseBrownConrady applies the inverse of the Brown-Conrady distortion model.
// Given distorted normalized points, it computes the corresponding undistorted points using
// an iterative Newton-Raphson method.
type InverseBrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// CheckValid checks if the fields for InverseBrownConrady have valid inputs.
func (ibc *InverseBrownConrady) CheckValid() error {
	if ibc == nil {
		return InvalidDistortionError("InverseBrownConrady shaped distortion_parameters not provided")
	}
	return ibc.Forward().CheckValid()
}

// NewInverseBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewInverseBrownConrady(inp []float64) (*InverseBrownConrady, error) {
	bc, err := NewBrownConrady(inp)
	if err != nil {
		return nil, err
	}
	return bc.Inverse(), nil
}

// ModelType returns the type of distortion model.
func (ibc *InverseBrownConrady) ModelType() DistortionType {
	return InverseBrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (ibc *InverseBrownConrady) Parameters() []float64 {
	return ibc.Forward().Parameters()
}

// Forward returns the distortion this model inverts.
func (ibc *InverseBrownConrady) Forward() *BrownConrady {
	if ibc == nil {
		return nil
	}
	return &BrownConrady{
		RadialK1:     ibc.RadialK1,
		RadialK2:     ibc.RadialK2,
		RadialK3:     ibc.RadialK3,
		TangentialP1: ibc.TangentialP1,
		TangentialP2: ibc.TangentialP2,
	}
}

// Transform solves x_d = D(x_u) for x_u, where D is the forward model:
//
//	x_d = x_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x_u*y_u + p2*(r² + 2*x_u²)
//	y_d = y_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x_u*y_u + p1*(r² + 2*y_u²)
//
// The distorted point is the starting guess. Iteration stops when the residual is below
// tolerance, the Jacobian is singular, or the iteration limit is reached.
func (ibc *InverseBrownConrady) Transform(xd, yd float64) (float64, float64) {
	if ibc == nil {
		return xd, yd
	}
	fwd := ibc.Forward()
	xu, yu := xd, yd
	for i := 0; i < inverseMaxIterations; i++ {
		xEst, yEst := fwd.Transform(xu, yu)
		errX, errY := xEst-xd, yEst-yd
		if errX*errX+errY*errY < inverseTolerance*inverseTolerance {
			break
		}
		a, b, c, d := fwd.jacobian(xu, yu)
		det := a*d - b*c
		if det == 0 {
			break
		}
		xu -= (d*errX - b*errY) / det
		yu -= (-c*errX + a*errY) / det
	}
	return xu, yu
}

// jacobian returns the partial derivatives [[dxd/dx, dxd/dy], [dyd/dx, dyd/dy]] of Transform at (x, y).
func (bc *BrownConrady) jacobian(x, y float64) (float64, float64, float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
	dRadial := bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r4
	dRdx, dRdy := 2*x*dRadial, 2*y*dRadial
	p1, p2 := bc.TangentialP1, bc.TangentialP2

	dxdx := radial + x*dRdx + 2*p1*y + 6*p2*x
	dxdy := x*dRdy + 2*p1*x + 2*p2*y
	dydx := y*dRdx + 2*p2*y + 2*p1*x
	dydy := radial + y*dRdy + 2*p2*x + 6*p1*y
	return dxdx, dxdy, dydx, dydy
}


package tracking

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// kalmanFilter estimates box motion with an 8-dimensional constant-velocity
// state: center-x, center-y, aspect ratio, height plus their velocities.
// Measurements are 4-dimensional XYAH boxes.
type kalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	motionMat         *mat.Dense // 8x8 transition
	updateMat         *mat.Dense // 4x8 projection to measurement space
}

// stateMean is an 8-element state vector.
type stateMean []float32

// stateCov is the 8x8 state covariance.
type stateCov struct {
	*mat.Dense
}

func newKalmanFilter(stdWeightPosition, stdWeightVelocity float32) *kalmanFilter {
	const ndim = 4
	const dt = 1.0

	motion := mat.NewDense(8, 8, nil)
	for i := 0; i < 8; i++ {
		motion.Set(i, i, 1.0)
	}
	for i := 0; i < ndim; i++ {
		motion.Set(i, ndim+i, dt)
	}

	update := mat.NewDense(4, 8, nil)
	for i := 0; i < 4; i++ {
		update.Set(i, i, 1.0)
	}

	return &kalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motion,
		updateMat:         update,
	}
}

// initiate seeds the state from a first measurement with zero velocity.
func (kf *kalmanFilter) initiate(mean stateMean, cov *stateCov, measurement [4]float32) {
	copy(mean[:4], measurement[:])
	for i := 4; i < 8; i++ {
		mean[i] = 0
	}

	h := measurement[3]
	std := stateMean{
		2 * kf.stdWeightPosition * h,
		2 * kf.stdWeightPosition * h,
		1e-2,
		2 * kf.stdWeightPosition * h,
		10 * kf.stdWeightVelocity * h,
		10 * kf.stdWeightVelocity * h,
		1e-5,
		10 * kf.stdWeightVelocity * h,
	}
	for i, v := range std {
		cov.Set(i, i, float64(v*v))
	}
}

// predict advances the state one frame through the motion model.
func (kf *kalmanFilter) predict(mean stateMean, cov *stateCov) {
	h := mean[3]
	std := stateMean{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-2,
		kf.stdWeightPosition * h,
		kf.stdWeightVelocity * h,
		kf.stdWeightVelocity * h,
		1e-5,
		kf.stdWeightVelocity * h,
	}

	motionCov := mat.NewDense(8, 8, nil)
	for i, v := range std {
		motionCov.Set(i, i, float64(v*v))
	}

	meanMat := mat.NewDense(8, 1, nil)
	for i := 0; i < 8; i++ {
		meanMat.Set(i, 0, float64(mean[i]))
	}
	meanMat.Mul(kf.motionMat, meanMat)
	for i := 0; i < 8; i++ {
		mean[i] = float32(meanMat.At(i, 0))
	}

	c := cov.Dense
	c.Mul(kf.motionMat, c)
	c.Mul(c, kf.motionMat.T())
	c.Add(c, motionCov)
}

// update corrects the state with a new measurement.
func (kf *kalmanFilter) update(mean stateMean, cov *stateCov, measurement [4]float32) error {
	projMean, projCov := kf.project(mean, cov)

	var chol mat.Cholesky
	if ok := chol.Factorize(projCov); !ok {
		return errors.New("projected covariance is not positive definite")
	}

	b := mat.NewDense(8, 4, nil)
	b.Mul(cov.Dense, kf.updateMat.T())

	var gain mat.Dense
	if err := chol.SolveTo(&gain, b.T()); err != nil {
		return fmt.Errorf("solve kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(4, nil)
	for i := 0; i < 4; i++ {
		innovation.SetVec(i, float64(measurement[i]-projMean[i]))
	}

	shift := mat.NewVecDense(8, nil)
	shift.MulVec(gain.T(), innovation)
	for i := 0; i < 8; i++ {
		mean[i] += float32(shift.AtVec(i))
	}

	tmp := mat.NewDense(8, 4, nil)
	tmp.Mul(gain.T(), projCov)
	reduction := mat.NewDense(8, 8, nil)
	reduction.Mul(tmp, &gain)

	next := mat.NewDense(8, 8, nil)
	next.Sub(cov.Dense, reduction)
	cov.Dense = next

	return nil
}

// project maps the state estimate into measurement space and adds the
// measurement noise.
func (kf *kalmanFilter) project(mean stateMean, cov *stateCov) ([4]float32, *mat.SymDense) {
	h := mean[3]
	std := [4]float32{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-1,
		kf.stdWeightPosition * h,
	}

	meanVec := mat.NewVecDense(8, nil)
	for i, v := range mean {
		meanVec.SetVec(i, float64(v))
	}
	projVec := mat.NewVecDense(4, nil)
	projVec.MulVec(kf.updateMat, meanVec)

	tmp := mat.NewDense(4, 8, nil)
	tmp.Mul(kf.updateMat, cov.Dense)
	full := mat.NewDense(4, 4, nil)
	full.Mul(tmp, kf.updateMat.T())

	projCov := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			projCov.SetSym(i, j, full.At(i, j))
		}
	}
	for i, v := range std {
		projCov.SetSym(i, i, projCov.At(i, i)+float64(v*v))
	}

	var projMean [4]float32
	for i := 0; i < 4; i++ {
		projMean[i] = float32(projVec.AtVec(i))
	}
	return projMean, projCov
}

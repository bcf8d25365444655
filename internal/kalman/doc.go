// Package kalman is a discrete linear Kalman filter with control input and
// delay compensation.
//
// Each Predict pushes the predicted state into a bounded history. When a
// measurement channel is configured with a delay of d cycles, its innovation
// is computed against the state predicted d cycles earlier, which is the
// state the sensor actually sampled. The resulting correction is applied to
// the current state and to every state still held in the history.
//
// Predict and Fuse never fail: dimension mismatches are programming errors
// and panic, and an ill-conditioned innovation covariance skips the update.
package kalman

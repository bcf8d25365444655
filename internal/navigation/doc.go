// Package navigation estimates body-frame velocity and navigation-frame
// position by fusing inertial samples with slower optical-flow, barometric
// and ranging measurements.
//
// Two periodic tasks share a Navigator. The velocity task predicts a
// six-state filter (velocity and accelerometer bias) from the specific force
// on every cycle and fuses staged measurements on every ratio-th cycle. The
// position task predicts a three-state filter from the velocity the first
// task last published and fuses integrated flow and height on its own
// cadence. Each task is the only writer of its half of the State store and
// publishes immutable snapshots, so readers never block the estimators.
package navigation

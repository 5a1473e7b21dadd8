package services

import "errors"

// ErrNoPose is returned when a frame was classified without a usable pose.
// The session treats it as a tracking loss.
var ErrNoPose = errors.New("no pose detected")

// noPoseLabels are labels the inference backend uses for "nothing found".
var noPoseLabels = map[string]bool{
	"":                 true,
	"unknown":          true,
	"no_pose_detected": true,
}

package splatscene

import "errors"

var (
	// ErrInvalidTimestamp is returned when a keyframe time is NaN or infinite.
	ErrInvalidTimestamp = errors.New("splatscene: invalid timestamp")
	// ErrEmptyPointCloud is returned when an observation yields no usable Gaussian.
	ErrEmptyPointCloud = errors.New("splatscene: empty point cloud")
	// ErrKeyframeConflict is returned when inserting a keyframe at a time that
	// already holds one.
	ErrKeyframeConflict = errors.New("splatscene: keyframe already exists")
	// ErrDuplicateIdentity is returned when a keyframe would hold two Gaussians
	// with the same Identity.
	ErrDuplicateIdentity = errors.New("splatscene: duplicate identity")
	// ErrInvalidGaussian is returned for Gaussians that cannot be repaired, such as
	// those with a non-finite position or a zero Identity.
	ErrInvalidGaussian = errors.New("splatscene: invalid gaussian")
)

// Package splatscene provides a library for maintaining a time-varying scene of
// 3D Gaussian splats; A scene is a virtual representation of a real-world space,
// maintained by digesting a stream of point-cloud observations in order to
// produce a consistent, queryable view of that space at any instant.
//
// Specifically, a SceneGraph stores an ordered set of keyframes, each being an
// immutable snapshot of Gaussians at one instant. Every Gaussian carries an
// Identity that persists across keyframes, so the scene can be evaluated at
// arbitrary times by interpolating each identity between the two keyframes
// that bracket the requested time.
//
// A SceneGraph is modified only by applying a Mutation, which either commits
// entirely or leaves the scene untouched. Each applied Mutation is summarized by
// a SceneChanged changeset whose SceneBefore and SceneAfter hashes version the
// scene's revisions.
//
// The reconstruct sub-package turns point clouds into Gaussians and decides how
// they enter the scene (append, replace, merge or track).
package splatscene

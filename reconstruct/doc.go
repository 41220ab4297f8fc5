// Package reconstruct turns point-cloud observations into Gaussian splats and
// folds them into a splatscene.SceneGraph.
//
// An Initializer converts one PointCloud into candidate Gaussians under a
// Policy (one per point, one per voxel, or one per cluster). An Updater then
// decides how the candidates enter the scene under a Strategy:
//
//   - Append inserts a new keyframe and refuses to overwrite an existing one.
//   - Replace supersedes the keyframe at the same time wholesale.
//   - Merge fuses candidates into nearby splats of the closest keyframe.
//   - Track appends a keyframe whose splats inherit the identities of nearby
//     splats in the preceding keyframe, so motion interpolates between them.
//
// Every update runs as a single splatscene.Mutation, so it either commits
// entirely or leaves the scene untouched.
//
// NewIngester wires an Updater to a pubsub subscription of gob-encoded point
// clouds and publishes the resulting SceneChanged notifications.
package reconstruct

package featureflag

type Flag string

const (
	// Runs collision passes with the recursive traversal instead of the
	// explicit stack one.
	FlagCollideRecursive Flag = "COLLIDE_RECURSIVE"

	// Cross-checks every nearby search against a linear scan of the object
	// table and logs mismatches.
	FlagValidateSearch Flag = "VALIDATE_SEARCH"

	// Rejects collision stream subscriptions.
	FlagDisableCollisionStream Flag = "DISABLE_COLLISION_STREAM"

	// Skips the collision pass of frames dispatched by the frame loop. The
	// tree is still rebuilt.
	FlagDisableFrameCollisions Flag = "DISABLE_FRAME_COLLISIONS"
)

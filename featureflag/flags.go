package featureflag

type Flag string

const (
	// Stops serving the realtime websocket endpoint. Spaces remain reachable
	// through the HTTP API.
	FlagDisableWebsocket Flag = "DISABLE_WEBSOCKET"

	// Stops serving the partition node dumps.
	FlagDisableDebugEndpoint Flag = "DISABLE_DEBUG_ENDPOINT"

	// Stores every sampled quad as is.
	FlagDisableQuadMerging Flag = "DISABLE_QUAD_MERGING"

	// Keeps spaces created over websocket once their last participant
	// leaves.
	FlagPersistRealtimeSpaces Flag = "PERSIST_REALTIME_SPACES"
)

package gateway

// Dispatcher delivers gateway events to connected users. Services use it to
// announce directory changes; the concrete Manager implements it.
type Dispatcher interface {
	DispatchToUser(userID int64, event string, data any)
	DispatchToUsers(userIDs []int64, event string, data any)
	// RevokeChannel stops userID's connection from following channelID and
	// tells it the membership is gone.
	RevokeChannel(userID, channelID int64)
}

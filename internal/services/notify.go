package services

import "bankledger/internal/websocket"

// Notifier pushes committed state to connected clients. Calls happen after
// the database transaction commits and never fail the operation.
type Notifier interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
	BroadcastLoan(userID string, update websocket.LoanUpdate)
}

type nopNotifier struct{}

func (nopNotifier) BroadcastBalance(string, websocket.BalanceUpdate) {}
func (nopNotifier) BroadcastLoan(string, websocket.LoanUpdate)       {}

package orders

import (
	"github.com/aquarent/aquarent-backend/pkg/enums"
)

// transitionTable is the single authority on order lifecycle moves. Terminal
// statuses have no outgoing edges.
var transitionTable = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated: {
		enums.OrderStatusPaymentPending,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaymentPending: {
		enums.OrderStatusPaymentCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaymentCompleted: {
		enums.OrderStatusAssigned,
		enums.OrderStatusInstallationPending,
	},
	enums.OrderStatusAssigned: {
		enums.OrderStatusInstallationPending,
		enums.OrderStatusInstalled,
	},
	enums.OrderStatusInstallationPending: {
		enums.OrderStatusInstalled,
		enums.OrderStatusAssigned,
	},
	enums.OrderStatusInstalled: {
		enums.OrderStatusCompleted,
	},
	enums.OrderStatusCompleted: nil,
	enums.OrderStatusCancelled: nil,
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sourcesFor returns every status from which the target is reachable in one
// step, used to build guarded UPDATE clauses.
func sourcesFor(to enums.OrderStatus) []enums.OrderStatus {
	var sources []enums.OrderStatus
	for from, nexts := range transitionTable {
		for _, next := range nexts {
			if next == to {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// cancellableStatuses lists every non-terminal status an admin may cancel from.
func cancellableStatuses() []enums.OrderStatus {
	var out []enums.OrderStatus
	for _, status := range []enums.OrderStatus{
		enums.OrderStatusCreated,
		enums.OrderStatusPaymentPending,
		enums.OrderStatusPaymentCompleted,
		enums.OrderStatusAssigned,
		enums.OrderStatusInstallationPending,
		enums.OrderStatusInstalled,
	} {
		out = append(out, status)
	}
	return out
}

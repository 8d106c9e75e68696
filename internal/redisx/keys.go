package redisx

import "fmt"

const (
	// Order intake claim: idem:order:create:{user_id}:{client_request_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cached ledger balance: balance:{user_id} -> minor units
	KeyBalance = "balance:%s"
)

func OrderClaimKey(userID, clientRequestID string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, userID, clientRequestID)
}

func BalanceKey(userID string) string {
	return fmt.Sprintf(KeyBalance, userID)
}

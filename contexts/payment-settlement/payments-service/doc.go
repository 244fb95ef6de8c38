// Package paymentsservice implements account settlement inside the
// payment-settlement context.
//
// The module owns account balances, top-ups, and the OrderCreated consumer
// that performs the conditional debit: inbox admission, per-order settlement
// uniqueness, and the balance update all commit in one transaction together
// with the result event's outbox row.
package paymentsservice

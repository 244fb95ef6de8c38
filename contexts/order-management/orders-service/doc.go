// Package ordersservice implements order lifecycle inside the
// order-management context.
//
// The module owns order creation with transactional OrderCreated emission,
// order reads, and the payment-result consumer that drives the
// new -> finished/cancelled state machine. Business rules stay in
// application/domain layers; infrastructure sits behind ports and adapters.
package ordersservice

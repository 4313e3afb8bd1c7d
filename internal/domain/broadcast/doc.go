// Package broadcast is the in-process event bus the package manager
// publishes lifecycle events to.
//
// Components depend only on Publisher. Receivers either Subscribe and read
// the channel or Register a handler. Delivery is FIFO per subscription:
// broadcasts for one package's transition, published as one batch, are
// seen in that order by every receiver. Different packages carry no
// relative ordering.
package broadcast

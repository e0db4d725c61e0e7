// Package events provides the in-process event channel used to broadcast
// task status changes (board refreshes) from the liveness tracker and the
// outcome state machine to whatever surfaces care, without coupling either
// component to a delivery mechanism.
package events

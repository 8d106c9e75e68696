// Package saga holds end-to-end tests of the purchase choreography. The four components
// run over their in-memory stores and share one outbox; a bus delivers each recorded
// envelope to the component bound to its route.
package saga
